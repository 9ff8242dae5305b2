package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New("INSTANCE_NOT_FOUND", "instance not found", http.StatusNotFound),
			want: "INSTANCE_NOT_FOUND: instance not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "DB_ERROR", "database failure", http.StatusInternalServerError),
			want: "DB_ERROR: database failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, "CODE", "msg", 500)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NotFound("NOT_FOUND", "resource not found")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want NOT_FOUND", got.Code)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		err          *AppError
		wantStatus   int
		wantCategory Category
	}{
		{"NotFound", NotFound("NF", "not found"), http.StatusNotFound, CategoryNotFound},
		{"Validation", Validation("VF", "bad input"), http.StatusUnprocessableEntity, CategoryValidation},
		{"Forbidden", Forbidden("FB", "forbidden"), http.StatusForbidden, CategoryForbidden},
		{"Conflict", Conflict("CF", "conflict"), http.StatusConflict, CategoryConflict},
		{"Internal", Internal("IE", "internal"), http.StatusInternalServerError, CategoryInternal},
		{"LimitReached", ErrInstanceLimitReached("env-1"), http.StatusConflict, CategoryAdmission},
		{"Disabled", ErrEnvironmentDisabled("env-1"), http.StatusForbidden, CategoryAdmission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
			if tt.err.Category != tt.wantCategory {
				t.Errorf("Category = %q, want %q", tt.err.Category, tt.wantCategory)
			}
		})
	}
}

func TestAdmissionIsDistinctFromForbidden(t *testing.T) {
	err := fmt.Errorf("create instance: %w", ErrEnvironmentDisabled("env-1"))

	if !IsAdmissionDenied(err) {
		t.Fatal("IsAdmissionDenied = false, want true")
	}
	if IsForbidden(err) {
		t.Fatal("IsForbidden = true for an admission refusal")
	}
	if !HasCode(err, CodeEnvironmentDisabled) {
		t.Fatalf("HasCode(%q) = false", CodeEnvironmentDisabled)
	}
}

func TestIsNotFound_Sentinel(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get instance: %w", ErrNotFound)) {
		t.Fatal("IsNotFound should match wrapped sentinel")
	}
	if !IsForbidden(ErrForbiddenf("delete instance")) {
		t.Fatal("IsForbidden should match ErrForbiddenf")
	}
}
