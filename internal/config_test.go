package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/modelhub/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Git.Binary != "git" || cfg.Git.Timeout <= 0 {
		t.Errorf("git defaults = %+v", cfg.Git)
	}
	if cfg.Storage.PendingGrace <= 0 {
		t.Errorf("pending grace default = %v", cfg.Storage.PendingGrace)
	}
}

func TestConfig_NegativePendingGrace(t *testing.T) {
	cfg := StorageConfig{SharedDir: "/srv/models", PendingGrace: -time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Error("negative pending grace should fail validation")
	}
}

func TestConfig_RequiredPaths(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.SharedDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty shared_dir should fail validation")
	}

	cfg = NewDefaultConfig()
	cfg.Catalog.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty catalog path should fail validation")
	}
}

func TestConfig_NegativeGitTimeout(t *testing.T) {
	cfg := GitConfig{Binary: "git", Timeout: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Error("negative timeout should fail validation")
	}
}

func TestConfig_QueueSize(t *testing.T) {
	cfg := JobsConfig{QueueSize: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("zero queue size should fail validation")
	}
}

func TestLoadYAMLWithEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MODELHUB_SHARED_DIR", filepath.Join(dir, "shared"))
	path := filepath.Join(dir, "config.yaml")
	content := `app:
  log_level: debug
  http:
    port: 9090
catalog:
  path: ` + filepath.Join(dir, "hub.db") + `
storage:
  shared_dir: ${MODELHUB_SHARED_DIR}
  remove_orphans: true
git:
  binary: git
  timeout: 90s
auth:
  mode: disabled
jobs:
  queue_size: 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.SharedDir != filepath.Join(dir, "shared") || !cfg.Storage.RemoveOrphans {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Git.Timeout != 90*time.Second {
		t.Errorf("timeout = %v", cfg.Git.Timeout)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Port != 9090 {
		t.Errorf("app = %+v", cfg.App)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `[catalog]
path = "/var/modelhub/modelhub.db"

[storage]
shared_dir = "/srv/shared_models"

[git]
timeout = "2m"

[jobs]
queue_size = 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Catalog.Path != "/var/modelhub/modelhub.db" || cfg.Storage.SharedDir != "/srv/shared_models" {
		t.Errorf("paths = %q, %q", cfg.Catalog.Path, cfg.Storage.SharedDir)
	}
	if cfg.Git.Timeout != 2*time.Minute || cfg.Git.Binary != "git" {
		t.Errorf("git = %+v", cfg.Git)
	}
	if cfg.App.HTTP.Port != 8080 {
		t.Errorf("unset keys should keep defaults, port = %d", cfg.App.HTTP.Port)
	}
}

func TestLoadTOMLUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	_ = os.WriteFile(path, []byte("[storage]\nshared_dri = \"/x\"\n"), 0o644)
	if err := pkgconfig.Load(path, NewDefaultConfig()); err == nil {
		t.Error("misspelled key should be rejected")
	}
}
