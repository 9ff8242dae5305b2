package domain

import (
	"strings"

	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

// Well-known log types. Drivers may use others.
const (
	LogTypeProvisioning   = "provisioning"
	LogTypeDeprovisioning = "deprovisioning"
	// LogTypeRunning is a live status snapshot: a new record replaces the old one.
	LogTypeRunning = "running"
)

// InstanceLog is one log record reported by a driver.
type InstanceLog struct {
	ID         string  `json:"id"`
	InstanceID string  `json:"instance_id"`
	LogType    string  `json:"log_type"`
	LogLevel   string  `json:"log_level"`
	Timestamp  float64 `json:"timestamp"` // unix seconds
	Message    string  `json:"message"`
}

// IsSnapshot reports whether the record replaces earlier records of its type.
func (l *InstanceLog) IsSnapshot() bool {
	return l.LogType == LogTypeRunning
}

// Validate checks the fields a driver must always send.
func (l *InstanceLog) Validate() error {
	if strings.TrimSpace(l.LogType) == "" {
		return apperrors.Validation(apperrors.CodeInvalidLogRecord, "log_type is required")
	}
	if strings.TrimSpace(l.LogLevel) == "" {
		return apperrors.Validation(apperrors.CodeInvalidLogRecord, "log_level is required")
	}
	if l.Timestamp < 0 {
		return apperrors.Validation(apperrors.CodeInvalidLogRecord, "timestamp must not be negative")
	}
	return nil
}
