package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Batch     BatchConfig     `mapstructure:"batch" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects the task store backend.
// For sqlite the URL is a modernc DSN such as "file:batchrelay.db".
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	URL    string `mapstructure:"url" validate:"required"`
}

// BatchConfig contains the settings for the remote OpenAI-compatible batch API.
type BatchConfig struct {
	BaseURL             string        `mapstructure:"base_url" validate:"required,url"`
	APIKey              string        `mapstructure:"api_key" validate:"required"`
	Model               string        `mapstructure:"model" validate:"required"`
	Endpoint            string        `mapstructure:"endpoint" validate:"required,startswith=/"`
	CompletionWindow    string        `mapstructure:"completion_window" validate:"required"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout" validate:"required,gt=0"`
	DefaultSystemPrompt string        `mapstructure:"default_system_prompt" validate:"required"`
}

// SchedulerConfig controls the periodic reconciliation of tasks.
type SchedulerConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"required,gt=0"`
	Concurrency int           `mapstructure:"concurrency" validate:"required,gt=0,lte=64"`
	RunOnStart  bool          `mapstructure:"run_on_start"`
}

// StorageConfig contains the local artifact storage settings.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir" validate:"required"`
}
