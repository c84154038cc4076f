package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnexpectedMessage — в очередь пришло событие не того типа.
	ErrUnexpectedMessage = errors.New("unexpected message type")

	// ErrRetryExhausted — все попытки dispatch исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)
