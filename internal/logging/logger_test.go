package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidgo/internal/logging"
	"vidgo/internal/services"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "vidgo.log")

	logger, err := logging.New(logging.Options{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("pipeline ready", logging.String("lane", "download"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "pipeline ready") {
		t.Fatalf("expected message in log output, got %q", out)
	}
	if !strings.Contains(out, "lane=download") {
		t.Fatalf("expected attribute in log output, got %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ctx.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := services.WithJobID(context.Background(), 7)
	ctx = services.WithStage(ctx, "optimize")
	ctx = services.WithLane(ctx, "subtitle")

	logging.WithContext(ctx, logger).Info("stage started")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{"job_id=7", "stage=optimize", "lane=subtitle"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output, got %q", want, out)
		}
	}
}
