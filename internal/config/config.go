// Package config loads loom's configuration from a YAML file plus LOOM_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved application configuration.
type Config struct {
	// Backend is the websocket endpoint carrying the event stream.
	Backend BackendConfig `mapstructure:"backend"`
	// Assistant is forwarded verbatim as the per-submission config.
	Assistant map[string]any `mapstructure:"assistant"`
	// RecursionLimit bounds graph steps per submission.
	RecursionLimit int `mapstructure:"recursion_limit"`
	// Prompt configures the interactive question surface.
	Prompt PromptConfig `mapstructure:"prompt"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// BackendConfig locates the transport endpoints.
type BackendConfig struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:2024/ws.
	URL string `mapstructure:"url"`
	// ThreadListURL is the HTTP endpoint the thread-list refresher hits.
	ThreadListURL string `mapstructure:"thread_list_url"`
	// WriteTimeout caps a single outbound command write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PromptConfig tunes the terminal question prompt.
type PromptConfig struct {
	// Timeout caps how long one question waits for input; zero disables.
	Timeout time.Duration `mapstructure:"timeout"`
	// Color toggles ANSI output.
	Color bool `mapstructure:"color"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "ws://127.0.0.1:2024/ws")
	v.SetDefault("backend.thread_list_url", "http://127.0.0.1:2024")
	v.SetDefault("backend.write_timeout", 15*time.Second)
	v.SetDefault("recursion_limit", 100)
	v.SetDefault("prompt.timeout", 0)
	v.SetDefault("prompt.color", true)
	v.SetDefault("log_level", "info")
}

// Load resolves configuration: defaults, then the config file (explicit path
// or loom.yaml in the working directory / $HOME/.loom), then LOOM_* env
// variables. A missing file is fine; a broken one is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("loom")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.loom")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
