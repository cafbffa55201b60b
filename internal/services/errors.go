package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("capability unavailable")
	ErrTransient    = errors.New("transient failure")
	ErrPermanent    = errors.New("permanent failure")
	ErrParse        = errors.New("parse error")
	ErrTimeout      = errors.New("timeout")
	ErrCanceled     = errors.New("canceled")
	ErrExternalTool = errors.New("external tool error")
)

// Classification tags mirror the error kinds exposed on stage records. They
// are stable strings consumed by the read surface and the CLI.
const (
	ClassInputInvalid        = "input_invalid"
	ClassNotFound            = "not_found"
	ClassExternalUnavailable = "external_unavailable"
	ClassExternalTransient   = "external_transient"
	ClassExternalPermanent   = "external_permanent"
	ClassParse               = "parse"
	ClassCanceled            = "canceled"
	ClassInternal            = "internal"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classification maps a stage error to its stable machine tag.
func Classification(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return ClassCanceled
	case errors.Is(err, ErrValidation):
		return ClassInputInvalid
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrUnavailable):
		return ClassExternalUnavailable
	case errors.Is(err, ErrPermanent):
		return ClassExternalPermanent
	case errors.Is(err, ErrParse):
		return ClassParse
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassExternalTransient
	case errors.Is(err, ErrTransient), errors.Is(err, ErrExternalTool):
		return ClassExternalTransient
	default:
		return ClassInternal
	}
}

// IsRetryable reports whether the orchestrator may retry the failed stage
// automatically. Only transient classes (network, 5xx, process timeout)
// qualify; everything else waits for an explicit retry request.
func IsRetryable(err error) bool {
	return Classification(err) == ClassExternalTransient
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
