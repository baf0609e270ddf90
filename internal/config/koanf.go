package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vinstackcode/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix is the prefix of every long-form environment variable.
const EnvPrefix = "VINSTACK_"

// Load resolves defaults, the config file and the environment, then validates
// the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// shortEnvNames maps the short variable names to config keys.
var shortEnvNames = map[string]string{
	"port":                 "server.port",
	"base_url":             "server.base_url",
	"db_path":              "database.path",
	"jwt_secret":           "auth.jwt_secret",
	"github_client_id":     "github.client_id",
	"github_client_secret": "github.client_secret",
	"github_callback_url":  "github.callback_url",
	"nats_url":             "events.nats_url",
	"elevenlabs_api_key":   "tts.api_key",
	"tavus_api_key":        "video.api_key",
	"stripe_secret_key":    "payment.secret_key",
	"anthropic_api_key":    "mentor.anthropic_api_key",
	"openai_api_key":       "mentor.openai_api_key",
	"log_level":            "logging.level",
	"log_format":           "logging.format",
}

// sections lists the top-level keys, longest first so "rate_limit" is tried
// before any shorter prefix could match.
var sections = []string{
	"rate_limit", "database", "executor", "realtime", "logging", "payment",
	"breaker", "github", "server", "events", "mentor", "video", "cache",
	"auth", "cors", "tts",
}

// envTransform maps an environment variable to a config key, or "" to skip it.
//
// VINSTACK_RATE_LIMIT_REQUESTS → rate_limit.requests: the section is matched
// against the known list, and the remainder is the field name verbatim.
func envTransform(key, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	lower := strings.ToLower(key)

	if mapped, ok := shortEnvNames[lower]; ok {
		return mapped, value
	}

	rest, ok := strings.CutPrefix(lower, strings.ToLower(EnvPrefix))
	if !ok {
		return "", nil
	}
	for _, s := range sections {
		if field, ok := strings.CutPrefix(rest, s+"_"); ok && field != "" {
			return s + "." + field, value
		}
	}
	return "", nil
}

var sliceConfigPaths = []string{
	"cors.origins",
}

// processSliceFields splits comma-separated strings from the environment into
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
