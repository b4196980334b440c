package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "BATCHRELAY"

// keys without a default still need an explicit env binding so that
// viper.Unmarshal sees them.
var boundKeys = []string{
	"batch.api_key",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8123)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "file:batchrelay.db")

	v.SetDefault("batch.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("batch.model", "qwen-turbo")
	v.SetDefault("batch.endpoint", "/v1/chat/completions")
	v.SetDefault("batch.completion_window", "24h")
	v.SetDefault("batch.request_timeout", "60s")
	v.SetDefault("batch.default_system_prompt", "You are a helpful assistant.")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("storage.data_dir", "data")
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom behaves like Load but looks for config.yaml in dir.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
