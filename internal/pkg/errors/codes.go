package errors

import "net/http"

// Error code constants. Clients switch on the code, never on the message.

// Instance error codes.
const (
	CodeInstanceNotFound       = "INSTANCE_NOT_FOUND"
	CodeInstanceNameConflict   = "INSTANCE_NAME_CONFLICT"
	CodeInvalidState           = "INVALID_STATE"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeInvalidInstanceData    = "INVALID_INSTANCE_DATA"
	CodeInvalidLogRecord       = "INVALID_LOG_RECORD"
	CodeConnectivityNotAllowed = "CONNECTIVITY_UPDATE_NOT_ALLOWED"
	CodeInstanceAlreadyDeleted = "INSTANCE_ALREADY_DELETED"
)

// Environment / template error codes.
const (
	CodeEnvironmentNotFound = "ENVIRONMENT_NOT_FOUND"
	CodeTemplateNotFound    = "TEMPLATE_NOT_FOUND"
	CodeInvalidEnvStatus    = "INVALID_ENVIRONMENT_STATUS"
)

// Admission error codes.
const (
	CodeInstanceLimitReached = "ENVIRONMENT_INSTANCE_LIMIT_REACHED"
	CodeEnvironmentDisabled  = "ENVIRONMENT_DISABLED"
)

// Quota error codes.
const (
	CodeInvalidQuota     = "INVALID_QUOTA"
	CodeInvalidQuotaType = "INVALID_QUOTA_TYPE"
	CodeUserNotFound     = "USER_NOT_FOUND"
)

// Validation error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidDuration  = "INVALID_DURATION"
)

// Authorization error codes.
const (
	CodeForbidden = "FORBIDDEN"
)

// Convenience constructors using predefined codes.

// ErrInstanceNotFoundf creates an instance not found error.
func ErrInstanceNotFoundf(instanceID string) *AppError {
	return NotFound(CodeInstanceNotFound, "instance not found").
		WithParams(map[string]interface{}{"instance_id": instanceID})
}

// ErrEnvironmentNotFoundf creates an environment not found error.
func ErrEnvironmentNotFoundf(environmentID string) *AppError {
	return NotFound(CodeEnvironmentNotFound, "environment not found").
		WithParams(map[string]interface{}{"environment_id": environmentID})
}

// ErrInstanceLimitReached is returned when the user already holds a live
// instance of the environment.
func ErrInstanceLimitReached(environmentID string) *AppError {
	return AdmissionDenied(CodeInstanceLimitReached, "instance limit for environment reached", http.StatusConflict).
		WithParams(map[string]interface{}{"environment_id": environmentID})
}

// ErrEnvironmentDisabled is returned when a non-privileged user requests an
// instance of a disabled environment.
func ErrEnvironmentDisabled(environmentID string) *AppError {
	return AdmissionDenied(CodeEnvironmentDisabled, "environment is disabled", http.StatusForbidden).
		WithParams(map[string]interface{}{"environment_id": environmentID})
}

// ErrForbiddenf creates a generic authorization failure.
func ErrForbiddenf(action string) *AppError {
	return Wrap(ErrForbidden, CodeForbidden, "not allowed to "+action, http.StatusForbidden)
}
