// Package cli реализует runbookctl, инструмент командной строки Runbooks.
//
// # Обзор
//
// CLI — клиентская утилита для Runbooks API. Работает через HTTP,
// не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, разбор ответов
// (DataResponse, ListResponse, ErrorResponse) и ошибки (*APIError).
// Identity передаётся bearer-токеном или заголовками X-Runbook-Principal
// и X-Runbook-Role (dev-режим).
//
//	client := cli.NewClient("http://localhost:8080", cli.Identity{Token: token})
//	list, err := client.ListRunbooks()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Note/Error) — в stderr:
// runbookctl exec history --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - runbook: list, show
//   - exec: trigger, show, history, mine, cancel, trail
//   - approval: pending, approve, reject
//   - policy: get, put (-f policy.yaml)
//   - stats
//
// Каждая группа создаётся фабричной функцией (NewExecCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
