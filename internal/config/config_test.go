package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv(WorkspaceEnv, "")
	path := writeConfig(t, "workspace:\n  dir: /tmp/ws\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Workspace.Dir != "/tmp/ws" {
		t.Errorf("Workspace.Dir = %q", cfg.Workspace.Dir)
	}
	if got := cfg.Workspace.OperationTimeout(); got != 30*time.Second {
		t.Errorf("OperationTimeout = %v, want 30s", got)
	}
	if cfg.Export.OutputDir != "./exports" {
		t.Errorf("Export.OutputDir = %q", cfg.Export.OutputDir)
	}
	if cfg.Anthropic.RetryCount != 3 {
		t.Errorf("Anthropic.RetryCount = %d", cfg.Anthropic.RetryCount)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadConfigWorkspaceEnvOverride(t *testing.T) {
	t.Setenv(WorkspaceEnv, "/override")
	path := writeConfig(t, "workspace:\n  dir: /tmp/ws\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Workspace.Dir != "/override" {
		t.Errorf("Workspace.Dir = %q, want /override", cfg.Workspace.Dir)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv(WorkspaceEnv, "")

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing workspace", "log:\n  level: info\n", "workspace directory is required"},
		{"bad level", "workspace:\n  dir: x\nlog:\n  level: loud\n", "unknown log level"},
		{"bad yaml", "workspace: [", "failed to parse config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJira(t *testing.T) {
	cfg := Sample()
	if err := cfg.ValidateJira(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}

	cfg.Jira.ProjectKey = ""
	if err := cfg.ValidateJira(); err == nil {
		t.Error("expected error for missing project key")
	}
}

func TestWriteSampleRoundTrip(t *testing.T) {
	t.Setenv(WorkspaceEnv, "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %v, want 0600", info.Mode().Perm())
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Jira.ProjectKey != "PROJ" {
		t.Errorf("Jira.ProjectKey = %q", cfg.Jira.ProjectKey)
	}
}
