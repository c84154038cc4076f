package catalog

import "errors"

// Ошибки каталога.
var (
	// ErrNotFound — runbook с таким именем отсутствует в каталоге.
	ErrNotFound = errors.New("runbook not found")

	// ErrInvalidCatalog — seed-файл каталога некорректен.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Ошибки валидации параметров.
var (
	// ErrMissingParameter — обязательный параметр не передан.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrUnknownParameter — параметр не объявлен в схеме runbook'а.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrInvalidType — значение не соответствует типу параметра.
	ErrInvalidType = errors.New("invalid parameter type")

	// ErrNotInEnum — значение не входит в список допустимых.
	ErrNotInEnum = errors.New("value not in enum")

	// ErrOutOfRange — значение за пределами min/max.
	ErrOutOfRange = errors.New("value out of range")
)

// ValidationError — ошибка валидации параметра с контекстом.
type ValidationError struct {
	Runbook string // имя runbook'а
	Param   string // имя параметра
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Param != "" {
		return "parameter " + e.Param + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(runbook, param, message string, err error) *ValidationError {
	return &ValidationError{
		Runbook: runbook,
		Param:   param,
		Message: message,
		Err:     err,
	}
}
