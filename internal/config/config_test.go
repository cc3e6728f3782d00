package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FORGE_CONFIG_PATH", filepath.Join(dir, "config.yaml"))

	cfg, err := LoadUserConfig()
	if err != nil {
		t.Fatalf("LoadUserConfig: %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Model, DefaultModel)
	}
	if cfg.ModelTimeoutSeconds != 300 {
		t.Errorf("model_timeout_seconds = %d, want 300", cfg.ModelTimeoutSeconds)
	}
	if cfg.MaxEditBytes != 300*1024 {
		t.Errorf("max_edit_bytes = %d, want %d", cfg.MaxEditBytes, 300*1024)
	}
	if !cfg.AutoDebugEnabled() {
		t.Error("auto_debug should default to enabled")
	}
	if len(cfg.SkipDirs) == 0 {
		t.Error("skip_dirs should have defaults")
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "model: llama3:8b\nshell_timeout_seconds: 120\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "llama3:8b" {
		t.Errorf("model = %q, want llama3:8b", cfg.Model)
	}
	if cfg.ShellTimeoutSeconds != 120 {
		t.Errorf("shell_timeout_seconds = %d, want 120", cfg.ShellTimeoutSeconds)
	}
	if cfg.HistoryTurns != 5 {
		t.Errorf("history_turns = %d, want default 5", cfg.HistoryTurns)
	}
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("model_timeout_seconds: 9999\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for oversized timeout")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FORGE_CONFIG_PATH", filepath.Join(dir, "nested", "config.yaml"))

	cfg := Config{}
	cfg.applyDefaults()
	cfg.Model = "codellama:13b"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadUserConfig()
	if err != nil {
		t.Fatalf("LoadUserConfig: %v", err)
	}
	if loaded.Model != "codellama:13b" {
		t.Errorf("model = %q, want codellama:13b", loaded.Model)
	}
}

func TestAutoDebugDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("auto_debug: false\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutoDebugEnabled() {
		t.Error("auto_debug: false should disable the debug loop")
	}
}

func TestConfigDirEnvOverride(t *testing.T) {
	t.Setenv("FORGE_CONFIG_DIR", "/tmp/forge-test-dir")
	if got := GetConfigDir(); got != "/tmp/forge-test-dir" {
		t.Errorf("GetConfigDir() = %q, want /tmp/forge-test-dir", got)
	}
}
