package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion_ListsModules(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, id := range []string{"gateway.http", "session.websocket", "provider.anthropic", "tool.mcp"} {
		if !strings.Contains(out, id) {
			t.Errorf("version output missing %s:\n%s", id, out)
		}
	}
}

func TestConfigInitAndCheck(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "conf", "agentbridge.yaml")

	out, err := execute(t, "config", "init", "--yes", "--output", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote "+path) {
		t.Errorf("output = %q", out)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	if _, err := execute(t, "config", "init", "--yes", "--output", path); err == nil {
		t.Error("expected refusal to overwrite without --force")
	}
	if _, err := execute(t, "config", "init", "--yes", "--force", "--output", path); err != nil {
		t.Errorf("init --force: %v", err)
	}

	out, err = execute(t, "config", "check", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	for _, want := range []string{"Configuration OK", "ledger.sqlite", "tool.bash", "tool.edit"} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCheck_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agentbridge.yaml")
	if err := os.WriteFile(path, []byte("version: \"2\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "check", path); err == nil {
		t.Error("expected validation error")
	}
}
