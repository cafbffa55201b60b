package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestWhisperBinaryPrefersAcceleration(t *testing.T) {
	binDir := t.TempDir()
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range []string{"main-vulkan", "main-cpu"} {
		if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
			t.Fatalf("write stub: %v", err)
		}
	}

	resolved := WhisperBinary(binDir, "auto")
	if filepath.Base(resolved) != "main-vulkan" {
		t.Fatalf("expected vulkan build, got %q", resolved)
	}
	if WhisperDevice(resolved) != "vulkan" {
		t.Fatalf("unexpected device: %q", WhisperDevice(resolved))
	}
}

func TestWhisperBinaryHonoursPreference(t *testing.T) {
	binDir := t.TempDir()
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range []string{"main-cuda", "main-cpu"} {
		if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
			t.Fatalf("write stub: %v", err)
		}
	}

	resolved := WhisperBinary(binDir, "cpu")
	if filepath.Base(resolved) != "main-cpu" {
		t.Fatalf("expected cpu build, got %q", resolved)
	}
}

func TestWhisperBinaryMissing(t *testing.T) {
	if got := WhisperBinary(t.TempDir(), "auto"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
	if got := WhisperBinary("", "auto"); got != "" {
		t.Fatalf("expected empty result for blank dir, got %q", got)
	}
}
