package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shipnology/shipnology-backend/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("resource conflict")
	ErrInternal     = errors.New("internal server error")
	ErrValidation   = errors.New("validation error")
	ErrGone         = errors.New("resource gone")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface. Sentinel causes are left out of the
// text, they only serve errors.Is.
func (e *AppError) Error() string {
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func isSentinel(err error) bool {
	switch err {
	case ErrNotFound, ErrUnauthorized, ErrForbidden, ErrBadRequest, ErrConflict,
		ErrInternal, ErrValidation, ErrGone, ErrTokenExpired, ErrTokenInvalid:
		return true
	}
	return false
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// keyed builds an AppError localized through key
func keyed(sentinel error, code, key, message string, status int) *AppError {
	return &AppError{
		Err:        sentinel,
		Code:       code,
		Message:    message,
		MessageKey: key,
		StatusCode: status,
	}
}

// NotFound reports a missing resource, named in English
func NotFound(resource string) *AppError {
	e := keyed(ErrNotFound, "NOT_FOUND", "errors.not_found", resource+" not found", http.StatusNotFound)
	e.Params = map[string]string{"resource": resource}
	return e
}

// NotFoundWithKey reports a missing resource whose name is itself localized
// from resources.<resourceKey>
func NotFoundWithKey(resourceKey string) *AppError {
	return NotFound(i18n.T("resources." + resourceKey))
}

func Unauthorized(message string) *AppError {
	return keyed(ErrUnauthorized, "UNAUTHORIZED", "errors.unauthorized", message, http.StatusUnauthorized)
}

func Forbidden(message string) *AppError {
	return keyed(ErrForbidden, "FORBIDDEN", "errors.forbidden", message, http.StatusForbidden)
}

func BadRequest(message string) *AppError {
	return keyed(ErrBadRequest, "BAD_REQUEST", "errors.bad_request", message, http.StatusBadRequest)
}

func Conflict(message string) *AppError {
	return keyed(ErrConflict, "CONFLICT", "errors.conflict", message, http.StatusConflict)
}

func Internal(message string) *AppError {
	return keyed(ErrInternal, "INTERNAL_ERROR", "errors.internal", message, http.StatusInternalServerError)
}

func Gone(message string) *AppError {
	return keyed(ErrGone, "GONE", "errors.gone", message, http.StatusGone)
}

// Validation carries per-field messages keyed by JSON path
func Validation(details map[string]string) *AppError {
	e := keyed(ErrValidation, "VALIDATION_ERROR", "errors.validation_failed", "validation failed", http.StatusBadRequest)
	e.Details = details
	return e
}

// TokenExpired and TokenInvalid describe bearer tokens, not setup tokens
func TokenExpired() *AppError {
	return keyed(ErrTokenExpired, "TOKEN_EXPIRED", "errors.token_expired", "token has expired", http.StatusUnauthorized)
}

func TokenInvalid() *AppError {
	return keyed(ErrTokenInvalid, "TOKEN_INVALID", "errors.token_invalid", "invalid token", http.StatusUnauthorized)
}

// Coder is implemented by domain errors that know their HTTP representation
type Coder interface {
	AppError() *AppError
}

// From converts any error into an AppError. Domain errors implementing Coder
// keep their own code and status, anything else becomes an internal error
// carrying the original as cause.
func From(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var coder Coder
	if errors.As(err, &coder) {
		return coder.AppError()
	}

	return Wrap(err, "INTERNAL_ERROR", "an internal error occurred", http.StatusInternalServerError)
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
