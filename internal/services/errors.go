package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Failure classifies a stage error for the runner's retry policy.
type Failure string

const (
	// FailureRetryable marks errors a fresh job may overcome (timeouts, 5xx).
	FailureRetryable Failure = "retryable"
	// FailureFatal marks errors that will recur until an operator intervenes.
	FailureFatal Failure = "fatal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a stage error to the classification reported to the runner.
func FailureStatus(err error) Failure {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return FailureRetryable
	default:
		return FailureFatal
	}
}

// ErrorDetails summarizes a wrapped error for logging.
type ErrorDetails struct {
	Kind    string
	Message string
}

// Details reports the marker kind and the human-readable message of err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := "unknown"
	for _, marker := range []error{ErrExternalTool, ErrValidation, ErrConfiguration, ErrNotFound, ErrTimeout, ErrTransient} {
		if errors.Is(err, marker) {
			kind = strings.ReplaceAll(marker.Error(), " ", "_")
			break
		}
	}
	return ErrorDetails{Kind: kind, Message: strings.TrimSpace(err.Error())}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
