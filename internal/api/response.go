package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/dflow/internal/domain"
)

// ErrorCode — код ошибки в конверте ответа.
type ErrorCode int

const (
	ErrCodeValidation        ErrorCode = 100
	ErrCodeJobNotFound       ErrorCode = 101
	ErrCodeInvalidJobState   ErrorCode = 102
	ErrCodeUnknownProcess    ErrorCode = 103
	ErrCodeNotAvailable      ErrorCode = 104 // лимит достигнут или нет подходящего job'а
	ErrCodeEntryNotFound     ErrorCode = 105
	ErrCodeInvalidTransition ErrorCode = 106
	ErrCodeUnauthorized      ErrorCode = 401
	ErrCodeInternal          ErrorCode = 500
)

// Коды статуса конверта.
const (
	StatusOK   = 0
	StatusFail = -1
)

// Envelope — конверт любого ответа.
type Envelope struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// Status — статус ответа.
type Status struct {
	Code  int          `json:"code"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Status: Status{Code: StatusOK}, Data: data})
}

// Fail отправляет ответ с ошибкой и HTTP статусом httpStatus.
func Fail(w http.ResponseWriter, httpStatus int, code ErrorCode, message string) {
	JSON(w, httpStatus, Envelope{Status: Status{
		Code:  StatusFail,
		Error: &ErrorDetail{Code: code, Message: message},
	}})
}

// Invalid отправляет ошибку валидации параметров.
func Invalid(w http.ResponseWriter, message string) {
	Fail(w, http.StatusOK, ErrCodeValidation, message)
}

// Unauthorized отправляет 401.
func Unauthorized(w http.ResponseWriter) {
	Fail(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid api key")
}

// InternalError отправляет 500 и логирует причину.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Fail(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// ErrorCodeFor переводит доменную ошибку в код ответа.
// ok == false — ошибка инфраструктуры.
func ErrorCodeFor(err error) (code ErrorCode, ok bool) {
	switch {
	case errors.Is(err, domain.ErrUnknownProcess):
		return ErrCodeUnknownProcess, true
	case errors.Is(err, domain.ErrJobNotFound):
		return ErrCodeJobNotFound, true
	case errors.Is(err, domain.ErrInvalidJobState):
		return ErrCodeInvalidJobState, true
	case errors.Is(err, domain.ErrTooManyRunning), errors.Is(err, domain.ErrNoJobAvailable):
		return ErrCodeNotAvailable, true
	case errors.Is(err, domain.ErrEntryNotFound):
		return ErrCodeEntryNotFound, true
	case errors.Is(err, domain.ErrInvalidTransition):
		return ErrCodeInvalidTransition, true
	case errors.Is(err, domain.ErrValidation):
		return ErrCodeValidation, true
	default:
		return ErrCodeInternal, false
	}
}

// HandleError отправляет ответ для ошибки ядра. Возвращает false для err == nil.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	code, ok := ErrorCodeFor(err)
	if !ok {
		InternalError(w, logger, err)
		return true
	}

	Fail(w, http.StatusOK, code, err.Error())
	return true
}
