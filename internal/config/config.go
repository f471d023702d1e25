// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, the notification
// pipeline (dedup window, delivery retries, worker pool), and the external
// Radarr/Sonarr and chat-gateway endpoints.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-media-notify")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ArrConfig holds the connection settings for one media backend
// (Radarr or Sonarr). A backend with an empty URL is considered disabled.
type ArrConfig struct {
	URL            string // base URL, trailing slash stripped
	APIKey         string // X-Api-Key header value
	RootFolder     string // root folder passed to add calls
	QualityProfile int    // quality profile id passed to add calls
}

// Enabled reports whether this backend is configured.
func (a ArrConfig) Enabled() bool { return strings.TrimSpace(a.URL) != "" }

// ChatConfig holds the chat-gateway (Discord-style) settings.
type ChatConfig struct {
	Token          string        // bot token
	APIBase        string        // REST base URL (overridable for tests)
	ApplicationID  string        // application id for slash-command registration
	DefaultChannel string        // channel for non-DM notifications
	SendRPS        float64       // outbound messages per second budget
	SendBurst      int           // outbound burst size
	RequestTimeout time.Duration // per-call HTTP timeout
}

// DeliveryConfig tunes the notification pipeline: the dedup window, the
// dispatcher's worker pool, and its retry/backoff policy.
type DeliveryConfig struct {
	DedupTTL    time.Duration // how long a fingerprint suppresses replays
	MaxRetries  int           // delivery attempts before an intent is dropped
	BackoffBase time.Duration // first retry delay; doubles per attempt
	Workers     int           // dispatcher worker pool size
	QueueSize   int           // buffered intent queue capacity
	GracePeriod time.Duration // shutdown drain window for in-flight intents
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Pipeline
	Delivery DeliveryConfig

	// External collaborators
	Radarr ArrConfig
	Sonarr ArrConfig
	Chat   ChatConfig

	// Rate limiting (inbound)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "3001"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "media-notify.db"),

		// Pipeline
		Delivery: DeliveryConfig{
			DedupTTL:    getdur("DEDUP_TTL", 24*time.Hour),
			MaxRetries:  getint("DELIVERY_MAX_RETRIES", 5),
			BackoffBase: getdur("DELIVERY_BACKOFF_BASE", 500*time.Millisecond),
			Workers:     getint("DELIVERY_WORKERS", 4),
			QueueSize:   getint("DELIVERY_QUEUE_SIZE", 256),
			GracePeriod: getdur("DELIVERY_GRACE_PERIOD", 10*time.Second),
		},

		// External collaborators
		Radarr: ArrConfig{
			URL:            strings.TrimRight(getenv("RADARR_URL", ""), "/"),
			APIKey:         getenv("RADARR_API_KEY", ""),
			RootFolder:     getenv("RADARR_ROOT_FOLDER", "/movies"),
			QualityProfile: getint("RADARR_QUALITY_PROFILE", 1),
		},
		Sonarr: ArrConfig{
			URL:            strings.TrimRight(getenv("SONARR_URL", ""), "/"),
			APIKey:         getenv("SONARR_API_KEY", ""),
			RootFolder:     getenv("SONARR_ROOT_FOLDER", "/tv"),
			QualityProfile: getint("SONARR_QUALITY_PROFILE", 1),
		},
		Chat: ChatConfig{
			Token:          getenv("DISCORD_TOKEN", ""),
			APIBase:        strings.TrimRight(getenv("DISCORD_API_BASE", "https://discord.com/api/v10"), "/"),
			ApplicationID:  getenv("DISCORD_APPLICATION_ID", ""),
			DefaultChannel: getenv("DEFAULT_NOTIFICATION_CHANNEL", ""),
			SendRPS:        getfloat("CHAT_SEND_RPS", 5.0),
			SendBurst:      getint("CHAT_SEND_BURST", 5),
			RequestTimeout: getdur("CHAT_REQUEST_TIMEOUT", 10*time.Second),
		},

		// Rate limiting (inbound webhooks / API)
		RateRPS:   getfloat("RATE_RPS", 10.0),
		RateBurst: getint("RATE_BURST", 20),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-media-notify"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Delivery.DedupTTL <= 0 {
		return cfg, errors.New("DEDUP_TTL must be > 0")
	}
	if cfg.Delivery.MaxRetries < 1 {
		return cfg, errors.New("DELIVERY_MAX_RETRIES must be >= 1")
	}
	if cfg.Delivery.BackoffBase <= 0 {
		return cfg, errors.New("DELIVERY_BACKOFF_BASE must be > 0")
	}
	if cfg.Delivery.Workers < 1 {
		return cfg, errors.New("DELIVERY_WORKERS must be >= 1")
	}
	if cfg.Delivery.QueueSize < 1 {
		return cfg, errors.New("DELIVERY_QUEUE_SIZE must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Chat.SendRPS <= 0 {
		return cfg, errors.New("CHAT_SEND_RPS must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
