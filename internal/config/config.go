// Package config provides configuration loading for forged.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. See LoadWithFile for precedence and security rules.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete forged configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Queue      QueueConfig      `koanf:"queue"`
	Claude     ClaudeConfig     `koanf:"claude"`
	Git        GitConfig        `koanf:"git"`
	Workspaces WorkspacesConfig `koanf:"workspaces"`
	Hosting    HostingConfig    `koanf:"hosting"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds the subset of logging configuration exposed in the
// config file. The full logging.Config is derived from it at startup.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// QueueConfig holds job queue configuration.
type QueueConfig struct {
	Workers       int     `koanf:"workers"`
	Capacity      int     `koanf:"capacity"`
	RatePerMinute float64 `koanf:"rate_per_minute"` // claude-code jobs; 0 disables limiting
	RateBurst     int     `koanf:"rate_burst"`
}

// ClaudeConfig holds AI CLI executor configuration.
type ClaudeConfig struct {
	Binary          string   `koanf:"binary"`
	APIKey          Secret   `koanf:"api_key"`
	IdleTimeout     Duration `koanf:"idle_timeout"`      // edit executions
	AskIdleTimeout  Duration `koanf:"ask_idle_timeout"`  // read-only executions
	ActivityCheck   Duration `koanf:"activity_check"`    // idle-timer poll interval
	StderrPreviewKB int      `koanf:"stderr_preview_kb"` // error detail cap
}

// GitConfig holds git subprocess configuration.
type GitConfig struct {
	Binary  string   `koanf:"binary"`
	Timeout Duration `koanf:"timeout"` // per git subcommand
}

// WorkspacesConfig holds workspace storage configuration.
type WorkspacesConfig struct {
	DataDir string `koanf:"data_dir"` // workspace records (JSON)
	Root    string `koanf:"root"`     // cloned working trees
}

// HostingConfig holds git forge credentials.
type HostingConfig struct {
	GitHubToken   Secret `koanf:"github_token"`
	GitLabToken   Secret `koanf:"gitlab_token"`
	GitLabBaseURL string `koanf:"gitlab_base_url"` // self-hosted GitLab; empty = gitlab.com
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9190
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = 256
	}
	if cfg.Queue.RateBurst == 0 {
		cfg.Queue.RateBurst = 1
	}

	if cfg.Claude.Binary == "" {
		cfg.Claude.Binary = "claude"
	}
	if cfg.Claude.IdleTimeout == 0 {
		cfg.Claude.IdleTimeout = Duration(300 * time.Second)
	}
	if cfg.Claude.AskIdleTimeout == 0 {
		cfg.Claude.AskIdleTimeout = cfg.Claude.IdleTimeout
	}
	if cfg.Claude.ActivityCheck == 0 {
		cfg.Claude.ActivityCheck = Duration(30 * time.Second)
	}
	if cfg.Claude.StderrPreviewKB == 0 {
		cfg.Claude.StderrPreviewKB = 4
	}

	if cfg.Git.Binary == "" {
		cfg.Git.Binary = "git"
	}
	if cfg.Git.Timeout == 0 {
		cfg.Git.Timeout = Duration(120 * time.Second)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be >= 1, got %d", c.Queue.Workers)
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue capacity must be >= 1, got %d", c.Queue.Capacity)
	}
	if c.Queue.RatePerMinute < 0 {
		return fmt.Errorf("queue rate_per_minute cannot be negative, got %v", c.Queue.RatePerMinute)
	}

	if c.Claude.IdleTimeout.Duration() <= 0 {
		return errors.New("claude idle_timeout must be positive")
	}
	if c.Claude.ActivityCheck.Duration() <= 0 {
		return errors.New("claude activity_check must be positive")
	}
	if c.Claude.ActivityCheck.Duration() > c.Claude.IdleTimeout.Duration() {
		return errors.New("claude activity_check must not exceed idle_timeout")
	}

	if c.Git.Timeout.Duration() <= 0 {
		return errors.New("git timeout must be positive")
	}

	if c.Workspaces.DataDir == "" {
		return errors.New("workspaces data_dir is required")
	}

	return nil
}
