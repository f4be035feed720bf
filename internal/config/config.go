// Package config provides configuration loading and validation for the studio server
// and the feed watcher. It uses koanf to merge environment variables with optional
// file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the studio server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database; the in-memory broadcast repository is used when empty
	DatabaseURL string `koanf:"database_url"`

	// Redis; discovery cache and multi-instance feed relay are disabled when empty
	RedisURL string `koanf:"redis_url"`

	// LiveKit (WebRTC)
	LiveKitURL       string `koanf:"livekit_url"`
	LiveKitAPIKey    string `koanf:"livekit_api_key"`
	LiveKitAPISecret string `koanf:"livekit_api_secret"`

	// Studio session defaults
	MaxHosts           int           `koanf:"max_hosts"`
	MaxGuests          int           `koanf:"max_guests"`
	TransportTimeout   time.Duration `koanf:"transport_timeout"`
	RequireUserGesture bool          `koanf:"require_user_gesture"`
	ReconcileInterval  time.Duration `koanf:"reconcile_interval"`

	// Push feed (client side, used by feedwatch)
	FeedURL            string        `koanf:"feed_url"`
	FeedRetryBaseDelay time.Duration `koanf:"feed_retry_base_delay"`
	FeedMaxRetries     int           `koanf:"feed_max_retries"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
}

// Configuration validation errors.
var (
	ErrMissingLiveKitURL       = errors.New("LIVEKIT_URL is required")
	ErrMissingLiveKitAPIKey    = errors.New("LIVEKIT_API_KEY is required")
	ErrMissingLiveKitAPISecret = errors.New("LIVEKIT_API_SECRET is required")
	ErrMissingFeedURL          = errors.New("FEED_URL is required")
	ErrInvalidPort             = errors.New("PORT must be a valid integer")
	ErrInvalidDuration         = errors.New("value must be a valid duration")
	ErrInvalidMaxHosts         = errors.New("STUDIO_MAX_HOSTS must be at least 1")
	ErrInvalidMaxGuests        = errors.New("STUDIO_MAX_GUESTS must not be negative")
	ErrInvalidSamplingRate     = errors.New("TRACING_SAMPLING_RATE must be between 0 and 1")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultMaxHosts            = 2
	DefaultMaxGuests           = 4
	DefaultTransportTimeout    = 10 * time.Second
	DefaultReconcileInterval   = 30 * time.Second
	DefaultFeedURL             = "ws://localhost:8080/feed"
	DefaultFeedRetryBaseDelay  = 3 * time.Second
	DefaultFeedMaxRetries      = 5
	DefaultTracingExporter     = "otlp-http"
	DefaultTracingSamplingRate = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error
	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try STUDIOCAST_PORT first, then PORT
	port, err := getEnvIntOrDefaultMulti([]string{"STUDIOCAST_PORT", "PORT"}, k.Int("port"), DefaultPort)
	collect(err)

	maxHosts, err := getEnvIntOrDefault("STUDIO_MAX_HOSTS", k.Int("max_hosts"), DefaultMaxHosts)
	collect(err)
	maxGuests, err := getEnvIntOrDefault("STUDIO_MAX_GUESTS", k.Int("max_guests"), DefaultMaxGuests)
	collect(err)
	// Zero guests is a valid file setting (host-only shows).
	if os.Getenv("STUDIO_MAX_GUESTS") == "" && k.Exists("max_guests") {
		maxGuests = k.Int("max_guests")
	}
	feedMaxRetries, err := getEnvIntOrDefault("FEED_MAX_RETRIES", k.Int("feed_max_retries"), DefaultFeedMaxRetries)
	collect(err)

	transportTimeout, err := getEnvDurationOrDefault("STUDIO_TRANSPORT_TIMEOUT", k.Duration("transport_timeout"), DefaultTransportTimeout)
	collect(err)
	reconcileInterval, err := getEnvDurationOrDefault("STUDIO_RECONCILE_INTERVAL", k.Duration("reconcile_interval"), DefaultReconcileInterval)
	collect(err)
	feedBaseDelay, err := getEnvDurationOrDefault("FEED_RETRY_BASE_DELAY", k.Duration("feed_retry_base_delay"), DefaultFeedRetryBaseDelay)
	collect(err)

	samplingRate, err := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	collect(err)

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefaultMulti([]string{"STUDIOCAST_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:            getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		LiveKitURL:          getEnvOrKoanf("LIVEKIT_URL", k, "livekit_url"),
		LiveKitAPIKey:       getEnvOrKoanf("LIVEKIT_API_KEY", k, "livekit_api_key"),
		LiveKitAPISecret:    getEnvOrKoanf("LIVEKIT_API_SECRET", k, "livekit_api_secret"),
		MaxHosts:            maxHosts,
		MaxGuests:           maxGuests,
		TransportTimeout:    transportTimeout,
		RequireUserGesture:  getEnvBoolOrDefault("STUDIO_REQUIRE_USER_GESTURE", k, "require_user_gesture", false),
		ReconcileInterval:   reconcileInterval,
		FeedURL:             getEnvOrDefault("FEED_URL", k.String("feed_url"), DefaultFeedURL),
		FeedRetryBaseDelay:  feedBaseDelay,
		FeedMaxRetries:      feedMaxRetries,
		TracingEnabled:      getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:     getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:     getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingSamplingRate: samplingRate,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// Note: a zero value from a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault returns the environment variable as a duration ("5s", "2m") if set,
// otherwise the koanf value, or default.
func getEnvDurationOrDefault(envKey string, koanfVal time.Duration, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault reads a feature flag. Env var takes precedence over file config;
// unrecognized env values are ignored.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}

// Validate checks the studio server configuration.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.LiveKitURL == "" {
		errs = append(errs, ErrMissingLiveKitURL)
	}
	if c.LiveKitAPIKey == "" {
		errs = append(errs, ErrMissingLiveKitAPIKey)
	}
	if c.LiveKitAPISecret == "" {
		errs = append(errs, ErrMissingLiveKitAPISecret)
	}
	errs = append(errs, c.validateCommon()...)

	return errs
}

// ValidateWatcher checks only what the feed watcher needs.
func (c *Config) ValidateWatcher() []error {
	var errs []error
	if c.FeedURL == "" {
		errs = append(errs, ErrMissingFeedURL)
	}
	return append(errs, c.validateCommon()...)
}

func (c *Config) validateCommon() []error {
	var errs []error
	if c.MaxHosts < 1 {
		errs = append(errs, ErrInvalidMaxHosts)
	}
	if c.MaxGuests < 0 {
		errs = append(errs, ErrInvalidMaxGuests)
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}
	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"database_url":          maskDatabaseURL(c.DatabaseURL),
		"redis_url":             maskDatabaseURL(c.RedisURL),
		"livekit_url":           c.LiveKitURL,
		"livekit_api_key":       maskSecret(c.LiveKitAPIKey),
		"livekit_api_secret":    maskSecret(c.LiveKitAPISecret),
		"max_hosts":             fmt.Sprintf("%d", c.MaxHosts),
		"max_guests":            fmt.Sprintf("%d", c.MaxGuests),
		"transport_timeout":     c.TransportTimeout.String(),
		"require_user_gesture":  fmt.Sprintf("%t", c.RequireUserGesture),
		"reconcile_interval":    c.ReconcileInterval.String(),
		"feed_url":              c.FeedURL,
		"feed_retry_base_delay": c.FeedRetryBaseDelay.String(),
		"feed_max_retries":      fmt.Sprintf("%d", c.FeedMaxRetries),
		"tracing_enabled":       fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_exporter":      c.TracingExporter,
		"tracing_endpoint":      c.TracingEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
