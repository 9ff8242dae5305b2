// Package errors provides domain-specific error types for the orchestration core.
//
// Every error that crosses a package boundary towards the CRUD layer or the worker
// API is an *AppError carrying a machine-readable code and an HTTP status. Driver
// absence and storage failures use plain sentinels and wrapping instead, because
// they never reach a client directly.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure scenarios.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrDriverUnavailable = errors.New("provisioning driver unavailable")
	ErrServiceUnavail    = errors.New("service unavailable")
)

// Category groups error codes into the taxonomy clients render differently:
// "fix your input" versus "try later" versus "not yours".
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryAdmission  Category = "admission"
	CategoryNotFound   Category = "not_found"
	CategoryForbidden  Category = "forbidden"
	CategoryConflict   Category = "conflict"
	CategoryInternal   Category = "internal"
)

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "INSTANCE_NOT_FOUND").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Category is the taxonomy bucket of Code.
	Category Category `json:"category"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context for clients.
	Params map[string]interface{} `json:"params,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   categoryForStatus(httpStatus),
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	appErr := New(code, message, httpStatus)
	appErr.Err = err
	return appErr
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// Common error constructors.

// NotFound creates a 404 error.
func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

// Validation creates a 422 error for malformed input that must never be retried.
func Validation(code, message string) *AppError {
	return New(code, message, http.StatusUnprocessableEntity)
}

// Forbidden creates a 403 error.
func Forbidden(code, message string) *AppError {
	return New(code, message, http.StatusForbidden)
}

// Conflict creates a 409 error.
func Conflict(code, message string) *AppError {
	return New(code, message, http.StatusConflict)
}

// Internal creates a 500 error.
func Internal(code, message string) *AppError {
	return New(code, message, http.StatusInternalServerError)
}

// AdmissionDenied creates an admission error. Admission errors keep their own
// category even when they share an HTTP status with Forbidden or Conflict.
func AdmissionDenied(code, message string, httpStatus int) *AppError {
	e := New(code, message, httpStatus)
	e.Category = CategoryAdmission
	return e
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return hasCategory(err, CategoryValidation)
}

// IsAdmissionDenied reports whether err is an admission refusal.
func IsAdmissionDenied(err error) bool {
	return hasCategory(err, CategoryAdmission)
}

// IsNotFound reports whether err is a not-found error, structured or sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || hasCategory(err, CategoryNotFound)
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) || hasCategory(err, CategoryForbidden)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}

func hasCategory(err error, c Category) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Category == c
}

func categoryForStatus(status int) Category {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CategoryValidation
	case http.StatusNotFound:
		return CategoryNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return CategoryForbidden
	case http.StatusConflict:
		return CategoryConflict
	default:
		return CategoryInternal
	}
}
