package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/codefionn/repoguard/internal/consts"
)

// Config represents repoguard configuration
type Config struct {
	GitBinary          string `json:"git_binary"`
	LogLevel           string `json:"log_level"` // debug, info, warn, error, none
	LogPath            string `json:"log_path,omitempty"`
	UnlockTimeoutMs    int    `json:"unlock_timeout_ms"`
	UnlockPollInterval int    `json:"unlock_poll_interval_ms"`
	EvictIdleLocks     bool   `json:"evict_idle_locks"`
	WatchLockFiles     bool   `json:"watch_lock_files"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "repoguard")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "repoguard")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "repoguard")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "repoguard")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		GitBinary:          consts.DefaultGitBinary,
		LogLevel:           "warn",
		UnlockTimeoutMs:    int(consts.DefaultUnlockTimeout / time.Millisecond),
		UnlockPollInterval: int(consts.DefaultUnlockPollInterval / time.Millisecond),
		EvictIdleLocks:     true,
		WatchLockFiles:     true,
	}
}

// Load loads configuration from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.GitBinary == "" {
		c.GitBinary = consts.DefaultGitBinary
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.UnlockTimeoutMs <= 0 {
		c.UnlockTimeoutMs = int(consts.DefaultUnlockTimeout / time.Millisecond)
	}
	if c.UnlockPollInterval <= 0 {
		c.UnlockPollInterval = int(consts.DefaultUnlockPollInterval / time.Millisecond)
	}
}

// ApplyEnv overrides fields from REPOGUARD_* environment variables
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("REPOGUARD_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("REPOGUARD_LOG_PATH")); v != "" {
		c.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("REPOGUARD_GIT")); v != "" {
		c.GitBinary = v
	}
}

// UnlockTimeout returns the index.lock wait timeout
func (c *Config) UnlockTimeout() time.Duration {
	return time.Duration(c.UnlockTimeoutMs) * time.Millisecond
}

// UnlockInterval returns the index.lock poll interval
func (c *Config) UnlockInterval() time.Duration {
	return time.Duration(c.UnlockPollInterval) * time.Millisecond
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
