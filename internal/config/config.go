// Package config loads the server configuration.
//
// LAYERED LOADING:
// Values are resolved in three layers, each overriding the previous one:
//
//  1. Defaults compiled into the binary (defaultConfig)
//  2. An optional YAML file (CONFIG_PATH, or config.yaml in the working dir)
//  3. Environment variables (VINSTACK_SERVER_PORT, VINSTACK_TTS_API_KEY, ...)
//
// A handful of short names (PORT, DB_PATH, JWT_SECRET, GITHUB_CLIENT_ID, ...)
// are accepted as well, so an existing deployment env keeps working.
//
// Only mapped variables are read. Unrelated environment variables never leak
// into the config, and empty variables are ignored rather than zeroing a value.
package config

import "time"

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	GitHub    GitHubConfig    `koanf:"github"`
	Executor  ExecutorConfig  `koanf:"executor"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	Events    EventsConfig    `koanf:"events"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	TTS       TTSConfig       `koanf:"tts"`
	Video     VideoConfig     `koanf:"video"`
	Payment   PaymentConfig   `koanf:"payment"`
	Mentor    MentorConfig    `koanf:"mentor"`
	Cache     CacheConfig     `koanf:"cache"`
	Logging   LoggingConfig   `koanf:"logging"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	BaseURL         string        `koanf:"base_url"` // public URL, used for OAuth callbacks and redirects
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	// JWTSecret signs session tokens. When empty a random secret is generated
	// at startup and sessions do not survive a restart.
	JWTSecret    string        `koanf:"jwt_secret"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

type GitHubConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	CallbackURL  string `koanf:"callback_url"`
}

// Enabled reports whether GitHub login is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type ExecutorConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Timeout       time.Duration `koanf:"timeout"`
	PoolSize      int           `koanf:"pool_size"`
	MemoryLimitMB int64         `koanf:"memory_limit_mb"`
	CPULimit      float64       `koanf:"cpu_limit"`
}

type RealtimeConfig struct {
	// CursorRate is how many cursor messages per second one connection may send.
	CursorRate  float64 `koanf:"cursor_rate"`
	CursorBurst int     `koanf:"cursor_burst"`
	SendBuffer  int     `koanf:"send_buffer"`
}

type EventsConfig struct {
	// NATSURL switches the event bus from in-process to NATS when set.
	NATSURL       string        `koanf:"nats_url"`
	MaxReconnects int           `koanf:"max_reconnects"` // -1 retries forever
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	CloseTimeout  time.Duration `koanf:"close_timeout"`
}

// BreakerConfig tunes the circuit breakers in front of third-party APIs.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

type TTSConfig struct {
	APIKey          string        `koanf:"api_key"`
	BaseURL         string        `koanf:"base_url"`
	VoiceID         string        `koanf:"voice_id"`
	ModelID         string        `koanf:"model_id"`
	Stability       float64       `koanf:"stability"`
	SimilarityBoost float64       `koanf:"similarity_boost"`
	Timeout         time.Duration `koanf:"timeout"`
}

type VideoConfig struct {
	APIKey       string        `koanf:"api_key"`
	BaseURL      string        `koanf:"base_url"`
	ReplicaID    string        `koanf:"replica_id"`
	PollInterval time.Duration `koanf:"poll_interval"`
	Timeout      time.Duration `koanf:"timeout"`
}

type PaymentConfig struct {
	SecretKey       string        `koanf:"secret_key"`
	BaseURL         string        `koanf:"base_url"`
	DefaultPriceID  string        `koanf:"default_price_id"`
	SuccessURL      string        `koanf:"success_url"`
	CancelURL       string        `koanf:"cancel_url"`
	PortalReturnURL string        `koanf:"portal_return_url"`
	Timeout         time.Duration `koanf:"timeout"`
}

// Mentor providers.
const (
	MentorAnthropic = "anthropic"
	MentorOpenAI    = "openai"
)

type MentorConfig struct {
	Provider        string `koanf:"provider"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	OpenAIAPIKey    string `koanf:"openai_api_key"`
	Model           string `koanf:"model"` // empty selects the provider default
	MaxTokens       int    `koanf:"max_tokens"`
}

type CacheConfig struct {
	// Dir holds the badger files. Empty keeps the cache in memory.
	Dir    string        `koanf:"dir"`
	TTSTTL time.Duration `koanf:"tts_ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Disabled bool          `koanf:"disabled"`
}

type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

// defaultConfig returns the compiled-in defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "",
			BaseURL:         "http://localhost:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "data/vinstackcode.db",
		},
		Auth: AuthConfig{
			TokenTTL:     24 * time.Hour,
			CookieSecure: false,
		},
		Executor: ExecutorConfig{
			Enabled:       true,
			Timeout:       5 * time.Second,
			PoolSize:      3,
			MemoryLimitMB: 128,
			CPULimit:      0.5,
		},
		Realtime: RealtimeConfig{
			CursorRate:  20,
			CursorBurst: 10,
			SendBuffer:  256,
		},
		Events: EventsConfig{
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			CloseTimeout:  10 * time.Second,
		},
		Breaker: BreakerConfig{
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		TTS: TTSConfig{
			BaseURL:         "https://api.elevenlabs.io",
			VoiceID:         "21m00Tcm4TlvDq8ikWAM",
			ModelID:         "eleven_monolingual_v1",
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Timeout:         30 * time.Second,
		},
		Video: VideoConfig{
			BaseURL:      "https://tavusapi.com",
			PollInterval: 5 * time.Second,
			Timeout:      30 * time.Second,
		},
		Payment: PaymentConfig{
			BaseURL:         "https://api.stripe.com",
			SuccessURL:      "http://localhost:8080/billing/success",
			CancelURL:       "http://localhost:8080/billing/cancel",
			PortalReturnURL: "http://localhost:8080/settings",
			Timeout:         15 * time.Second,
		},
		Mentor: MentorConfig{
			Provider:  MentorAnthropic,
			MaxTokens: 1024,
		},
		Cache: CacheConfig{
			TTSTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
		},
		CORS: CORSConfig{
			Origins: []string{"http://localhost:3000", "http://localhost:8080"},
		},
	}
}
