package runner

import "errors"

// Ошибки Runner'а.
var (
	// ErrUnknownRunbook — нет реализации для runbook'а.
	ErrUnknownRunbook = errors.New("no runner for runbook")

	// ErrRunnerTimeout — runbook не уложился в таймаут.
	ErrRunnerTimeout = errors.New("runner timeout")

	// ErrRunnerPanic — реализация runbook'а запаниковала.
	ErrRunnerPanic = errors.New("runner panicked")

	// ErrHTTPRequest — вызов внешнего automation endpoint'а завершился ошибкой.
	ErrHTTPRequest = errors.New("runner http request failed")
)
