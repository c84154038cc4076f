package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrInvalidParameters — параметры не прошли валидацию по схеме runbook'а.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrRunbookUnavailable — runbook отсутствует в каталоге или выключен.
	ErrRunbookUnavailable = errors.New("runbook unavailable")

	// ErrDryRunUnsupported — запрошен dry-run для runbook'а без его поддержки.
	ErrDryRunUnsupported = errors.New("dry run not supported")

	// ErrForbidden — роли не разрешена операция.
	ErrForbidden = errors.New("forbidden")

	// ErrStaleExecutionState — execution изменён параллельно или уже не в нужном статусе.
	ErrStaleExecutionState = errors.New("stale execution state")

	// ErrCannotCancelRunningExecution — Runner уже вызван, отмена невозможна.
	ErrCannotCancelRunningExecution = errors.New("cannot cancel running execution")

	// ErrRunnerFailure — Runner вернул ошибку (пишется в error_message).
	ErrRunnerFailure = errors.New("runner failure")

	// ErrExecutionNotFound — execution не найден.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrAlreadyDecided — approver уже голосовал по этому execution'у.
	ErrAlreadyDecided = errors.New("approver already decided")

	// ErrInvalidDecision — решение не approved и не rejected.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrResultUnavailable — результат вынесен в object storage, а оно не настроено.
	ErrResultUnavailable = errors.New("result unavailable")
)
