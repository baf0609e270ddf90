package config

import (
	"fmt"
	"strings"
)

// MinJWTSecretLength matches the check in auth.NewTokenService.
const MinJWTSecretLength = 16

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters", MinJWTSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be positive")
	}
	if c.Executor.PoolSize < 1 {
		return fmt.Errorf("executor.pool_size must be at least 1")
	}
	if c.Realtime.CursorRate <= 0 || c.Realtime.CursorBurst < 1 {
		return fmt.Errorf("realtime.cursor_rate and realtime.cursor_burst must be positive")
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1")
	}
	if c.TTS.Stability < 0 || c.TTS.Stability > 1 {
		return fmt.Errorf("tts.stability must be between 0 and 1")
	}
	if c.TTS.SimilarityBoost < 0 || c.TTS.SimilarityBoost > 1 {
		return fmt.Errorf("tts.similarity_boost must be between 0 and 1")
	}
	if c.Video.PollInterval <= 0 {
		return fmt.Errorf("video.poll_interval must be positive")
	}
	switch c.Mentor.Provider {
	case MentorAnthropic, MentorOpenAI:
	default:
		return fmt.Errorf("mentor.provider must be %q or %q, got %q", MentorAnthropic, MentorOpenAI, c.Mentor.Provider)
	}
	if !c.RateLimit.Disabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console; got %q", c.Logging.Format)
	}
	return nil
}
