// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRootCommand_HasExpectedBasics(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "g8r" {
		t.Fatalf("expected Use to be 'g8r', got %q", cmd.Use)
	}

	if cmd.Short == "" {
		t.Fatalf("expected Short description to be non-empty")
	}

	versionCmd, _, err := cmd.Find([]string{"version"})
	if err != nil {
		t.Fatalf("expected to find 'version' subcommand, got error: %v", err)
	}

	if versionCmd.Use != "version" {
		t.Fatalf("expected 'version' command Use to be 'version', got %q", versionCmd.Use)
	}
}

func TestVersionCommand_PrintsVersion(t *testing.T) {
	cmd := NewRootCommand()

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error executing 'version' command, got: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "g8r version") {
		t.Fatalf("expected output to contain 'g8r version', got: %q", out)
	}
}

func TestNewRootCommand_HasServeAndStackSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	if _, _, err := cmd.Find([]string{"serve"}); err != nil {
		t.Fatalf("expected to find 'serve' subcommand, got error: %v", err)
	}
	if _, _, err := cmd.Find([]string{"stack", "sync"}); err != nil {
		t.Fatalf("expected to find 'stack sync' subcommand, got error: %v", err)
	}
	if _, _, err := cmd.Find([]string{"stack", "destroy"}); err != nil {
		t.Fatalf("expected to find 'stack destroy' subcommand, got error: %v", err)
	}
}
