package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vidgo/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcode", "mux", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcode", "mux", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassificationMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", services.Wrap(services.ErrValidation, "fetch", "parse url", "bad url", nil), services.ClassInputInvalid},
		{"not found", services.Wrap(services.ErrNotFound, "store", "open", "missing", nil), services.ClassNotFound},
		{"unavailable", services.Wrap(services.ErrUnavailable, "transcribe", "select", "no model", nil), services.ClassExternalUnavailable},
		{"transient", services.Wrap(services.ErrTransient, "fetch", "download", "reset", errors.New("io")), services.ClassExternalTransient},
		{"timeout", services.Wrap(services.ErrTimeout, "runner", "wait", "deadline", nil), services.ClassExternalTransient},
		{"permanent", services.Wrap(services.ErrPermanent, "fetch", "sign", "rejected", nil), services.ClassExternalPermanent},
		{"parse", services.Wrap(services.ErrParse, "subtitles", "decode", "bad json", nil), services.ClassParse},
		{"canceled", services.Wrap(services.ErrCanceled, "export", "burn", "stopped", nil), services.ClassCanceled},
		{"context canceled", context.Canceled, services.ClassCanceled},
		{"plain", errors.New("boom"), services.ClassInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classification(tc.err); got != tc.want {
				t.Fatalf("Classification(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !services.IsRetryable(services.Wrap(services.ErrTransient, "fetch", "download", "", errors.New("eof"))) {
		t.Fatal("transient error should be retryable")
	}
	if !services.IsRetryable(services.Wrap(services.ErrTimeout, "runner", "wait", "", nil)) {
		t.Fatal("timeout should be retryable")
	}
	if services.IsRetryable(services.Wrap(services.ErrPermanent, "fetch", "sign", "", nil)) {
		t.Fatal("permanent error should not be retryable")
	}
	if services.IsRetryable(services.Wrap(services.ErrValidation, "fetch", "parse", "", nil)) {
		t.Fatal("validation error should not be retryable")
	}
}
