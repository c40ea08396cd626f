// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Errorf("expected no output for debug at Info level, got: %q", buf.String())
	}

	buf.Reset()
	logger.Info("info message")
	if !strings.Contains(buf.String(), `"message":"info message"`) {
		t.Errorf("expected info message in output, got: %q", buf.String())
	}

	buf.Reset()
	logger.Warn("warn message")
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected warn level in output, got: %q", buf.String())
	}

	buf.Reset()
	logger.Error("error message")
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error level in output, got: %q", buf.String())
	}
}

func TestLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Debug("debug message")
	if !strings.Contains(buf.String(), `"level":"debug"`) {
		t.Errorf("expected debug level in output when verbose, got: %q", buf.String())
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger = logger.WithFields(NewField("env", "prod"), NewField("version", "1.0.0"))
	logger.Info("deploying")

	output := buf.String()
	if !strings.Contains(output, `"env":"prod"`) {
		t.Errorf("expected env field in output, got: %q", output)
	}
	if !strings.Contains(output, `"version":"1.0.0"`) {
		t.Errorf("expected version field in output, got: %q", output)
	}
}

func TestNewDefault(t *testing.T) {
	if NewDefault(false) == nil {
		t.Fatalf("expected non-nil logger")
	}
	if NewDefault(true) == nil {
		t.Fatalf("expected non-nil logger")
	}
}
