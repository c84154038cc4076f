package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Runbooks/internal/catalog"
	"github.com/shaiso/Runbooks/internal/orchestrator"
	"github.com/shaiso/Runbooks/internal/policy"
	"github.com/shaiso/Runbooks/internal/repo"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidParameters  ErrorCode = "INVALID_PARAMETERS"
	ErrCodeDryRunUnsupported  ErrorCode = "DRY_RUN_UNSUPPORTED"
	ErrCodeInvalidPolicy      ErrorCode = "INVALID_POLICY"
	ErrCodeRunbookUnavailable ErrorCode = "RUNBOOK_UNAVAILABLE"
	ErrCodeStaleState         ErrorCode = "STALE_EXECUTION_STATE"
	ErrCodeAlreadyDecided     ErrorCode = "ALREADY_DECIDED"
	ErrCodeConflictingPolicy  ErrorCode = "CONFLICTING_POLICY"
	ErrCodeCannotCancel       ErrorCode = "CANNOT_CANCEL_RUNNING_EXECUTION"
	ErrCodeResultUnavailable  ErrorCode = "RESULT_UNAVAILABLE"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// Param — параметр, не прошедший валидацию.
	Param string `json:"param,omitempty"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized отправляет ошибку 401.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// errorMapping — sentinel ошибка → HTTP статус и код.
var errorMapping = []struct {
	err    error
	status int
	code   ErrorCode
}{
	{orchestrator.ErrInvalidParameters, http.StatusBadRequest, ErrCodeInvalidParameters},
	{orchestrator.ErrDryRunUnsupported, http.StatusBadRequest, ErrCodeDryRunUnsupported},
	{orchestrator.ErrInvalidDecision, http.StatusBadRequest, ErrCodeBadRequest},
	{policy.ErrInvalidPolicy, http.StatusBadRequest, ErrCodeInvalidPolicy},
	{policy.ErrUnknownRunbook, http.StatusNotFound, ErrCodeRunbookUnavailable},
	{orchestrator.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
	{orchestrator.ErrRunbookUnavailable, http.StatusNotFound, ErrCodeRunbookUnavailable},
	{orchestrator.ErrExecutionNotFound, http.StatusNotFound, ErrCodeNotFound},
	{repo.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{orchestrator.ErrStaleExecutionState, http.StatusConflict, ErrCodeStaleState},
	{orchestrator.ErrAlreadyDecided, http.StatusConflict, ErrCodeAlreadyDecided},
	{policy.ErrConflictingPolicy, http.StatusConflict, ErrCodeConflictingPolicy},
	{orchestrator.ErrCannotCancelRunningExecution, http.StatusUnprocessableEntity, ErrCodeCannotCancel},
	{orchestrator.ErrResultUnavailable, http.StatusServiceUnavailable, ErrCodeResultUnavailable},
}

// HandleError преобразует ошибку оркестратора в HTTP ответ.
// Возвращает false, если err == nil.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	for _, m := range errorMapping {
		if !errors.Is(err, m.err) {
			continue
		}
		detail := ErrorDetail{Code: m.code, Message: err.Error()}
		var vErr *catalog.ValidationError
		if errors.As(err, &vErr) {
			detail.Param = vErr.Param
		}
		JSON(w, m.status, ErrorResponse{Error: detail})
		return true
	}

	InternalError(w, logger, err)
	return true
}
