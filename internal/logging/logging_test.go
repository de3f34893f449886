package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenWritesConsoleAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	console := &bytes.Buffer{}
	now := time.Date(2026, 10, 19, 7, 5, 9, 0, time.Local)

	run, err := Open(Options{Dir: dir, Name: "rollCall", Now: now, Console: console, Fields: map[string]string{"run": "abc"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	run.Logger.Info().Str("host", "pi1.wifi.etsu.edu").Msg("online")
	run.Logger.Debug().Msg("hidden")
	if err := run.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if filepath.Base(run.Path) != "2026-10-19_070509_rollCall.log" {
		t.Fatalf("unexpected log name %q", run.Path)
	}
	data, err := os.ReadFile(run.Path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, out := range []string{console.String(), string(data)} {
		if !strings.Contains(out, "online") || !strings.Contains(out, "pi1.wifi.etsu.edu") || !strings.Contains(out, "run=abc") {
			t.Fatalf("expected message in output, got %q", out)
		}
		if strings.Contains(out, "hidden") {
			t.Fatalf("debug message leaked at info level: %q", out)
		}
	}
}

func TestOpenVerboseEnablesDebug(t *testing.T) {
	console := &bytes.Buffer{}
	run, err := Open(Options{Dir: t.TempDir(), Console: console, Verbose: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer run.Close()
	run.Logger.Debug().Msg("details")
	if !strings.Contains(console.String(), "details") {
		t.Fatalf("expected debug output, got %q", console.String())
	}
}
