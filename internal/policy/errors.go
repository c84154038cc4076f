package policy

import "errors"

// Ошибки политик одобрения.
var (
	// ErrNoMatchingPolicy — для роли нет включённой политики (fail closed).
	ErrNoMatchingPolicy = errors.New("no matching approval policy")

	// ErrConflictingPolicy — политика для (runbook, trigger_role) уже существует.
	ErrConflictingPolicy = errors.New("conflicting approval policy")

	// ErrInvalidPolicy — политика не прошла валидацию.
	ErrInvalidPolicy = errors.New("invalid approval policy")

	// ErrUnknownRunbook — политика ссылается на runbook, которого нет в каталоге.
	ErrUnknownRunbook = errors.New("policy references unknown runbook")
)
