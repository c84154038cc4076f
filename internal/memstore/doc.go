// Package memstore — in-memory реализации хранилищ.
//
// Используется в unit-тестах и в single-node dev режиме (без DB_URL).
// Семантика совпадает с internal/repo: те же ошибки (repo.ErrNotFound,
// repo.ErrAlreadyExists, repo.ErrStaleVersion), та же сортировка выборок.
// Наружу отдаются только копии, внутреннее состояние не утекает.
package memstore
