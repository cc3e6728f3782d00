package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultModel is the model identifier passed to the ollama runtime when
// neither the config file nor LOCAL_AI_MODEL says otherwise.
const DefaultModel = "qwen2.5-coder:14b"

// Config captures the tunable runtime settings for the agent.
type Config struct {
	Model                string   `yaml:"model"`
	ModelTimeoutSeconds  int      `yaml:"model_timeout_seconds"`
	ShellTimeoutSeconds  int      `yaml:"shell_timeout_seconds"`
	MaxEditBytes         int      `yaml:"max_edit_bytes"`
	MaxContextFiles      int      `yaml:"max_context_files"`
	MaxFileBytes         int      `yaml:"max_file_bytes"`
	TruncateFileChars    int      `yaml:"truncate_file_chars"`
	HistoryTurns         int      `yaml:"history_turns"`
	AutoDebug            *bool    `yaml:"auto_debug"`
	MaxDebugIterations   int      `yaml:"max_debug_iterations"`
	SearchResults        int      `yaml:"search_results"`
	HistoryPath          string   `yaml:"history_path"`
	LogPath              string   `yaml:"log_path"`
	SkipDirs             []string `yaml:"skip_dirs"`
}

// defaultSkipDirs lists directories excluded from project context loading.
var defaultSkipDirs = []string{
	".git", "node_modules", "dist", "build", "__pycache__",
	".pytest_cache", ".venv", "venv", "env", "vendor",
}

// GetConfigDir returns the forge data directory, honoring FORGE_CONFIG_DIR.
func GetConfigDir() string {
	if configDir := os.Getenv("FORGE_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forge"
	}
	return filepath.Join(home, ".forge")
}

func configPath() string {
	if path := os.Getenv("FORGE_CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// LoadUserConfig loads configuration from ~/.forge/config.yaml.
// Checks FORGE_CONFIG_PATH first. A missing file yields defaults, not an error.
func LoadUserConfig() (Config, error) {
	path := configPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	return Load(path)
}

// Load reads the YAML configuration from disk and injects sane defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config to the user's config file.
func Save(c Config) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyDefaults fills in optional values to keep the YAML file concise.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if c.ModelTimeoutSeconds <= 0 {
		c.ModelTimeoutSeconds = 300
	}
	if c.ShellTimeoutSeconds <= 0 {
		c.ShellTimeoutSeconds = 60
	}
	if c.MaxEditBytes <= 0 {
		c.MaxEditBytes = 300 * 1024
	}
	if c.MaxContextFiles <= 0 {
		c.MaxContextFiles = 50
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 300 * 1024
	}
	if c.TruncateFileChars <= 0 {
		c.TruncateFileChars = 5000
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 5
	}
	if c.AutoDebug == nil {
		enabled := true
		c.AutoDebug = &enabled
	}
	if c.MaxDebugIterations <= 0 {
		c.MaxDebugIterations = 5
	}
	if c.SearchResults <= 0 {
		c.SearchResults = 5
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(GetConfigDir(), ".history")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(GetConfigDir(), "forge.log")
	}
	if len(c.SkipDirs) == 0 {
		c.SkipDirs = append([]string(nil), defaultSkipDirs...)
	}
}

func (c Config) validate() error {
	if c.ModelTimeoutSeconds > 600 {
		return fmt.Errorf("model_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.ShellTimeoutSeconds > 600 {
		return fmt.Errorf("shell_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.MaxEditBytes > 10*1024*1024 {
		return fmt.Errorf("max_edit_bytes cannot exceed 10MB")
	}
	if c.MaxDebugIterations > 20 {
		return fmt.Errorf("max_debug_iterations cannot exceed 20")
	}
	if c.SearchResults > 25 {
		return fmt.Errorf("search_results cannot exceed 25")
	}
	return nil
}

// ModelTimeout turns the integer value into a duration for the model runtime.
func (c Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

// ShellTimeout exposes the configured duration for shell commands.
func (c Config) ShellTimeout() time.Duration {
	return time.Duration(c.ShellTimeoutSeconds) * time.Second
}

// AutoDebugEnabled reports whether failed commands trigger the debug loop.
func (c Config) AutoDebugEnabled() bool {
	return c.AutoDebug == nil || *c.AutoDebug
}
