package internal

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	APIBaseURL     string
	ChannelURL     string
	APIToken       string
	ProxyURL       string
	DefaultTimeout time.Duration
	UploadTimeout  time.Duration
	ImageTimeout   time.Duration
	AudioTimeout   time.Duration
	ConnectTimeout time.Duration
	CacheDir       string
	SharedDir      string
	RateLimit      int64 // bytes per second, 0 means unlimited

	// Logging configuration
	LogLevel    string
	EnableDebug bool
	QuietMode   bool
	LogFile     string
}

// Developer-machine fallbacks used when nothing is configured
const (
	DefaultAPIBaseURL = "http://192.168.1.100:3000/api"
	DefaultChannelURL = "http://192.168.1.100:3000"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:     DefaultAPIBaseURL,
		ChannelURL:     DefaultChannelURL,
		DefaultTimeout: 30 * time.Second,
		UploadTimeout:  30 * time.Second,
		ImageTimeout:   60 * time.Second,
		AudioTimeout:   90 * time.Second,
		ConnectTimeout: 5 * time.Second,
		CacheDir:       filepath.Join(os.TempDir(), "translink"),

		// Logging defaults
		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	c.APIBaseURL = GetEnvWithDefault("TRANSLINK_API_URL", c.APIBaseURL)
	c.ChannelURL = GetEnvWithDefault("TRANSLINK_WS_URL", c.ChannelURL)
	c.APIToken = GetEnvWithDefault("TRANSLINK_API_TOKEN", c.APIToken)
	c.ProxyURL = GetEnvWithDefault("TRANSLINK_PROXY", c.ProxyURL)

	loadSeconds("TRANSLINK_TIMEOUT", &c.DefaultTimeout)
	loadSeconds("TRANSLINK_UPLOAD_TIMEOUT", &c.UploadTimeout)
	loadSeconds("TRANSLINK_IMAGE_TIMEOUT", &c.ImageTimeout)
	loadSeconds("TRANSLINK_AUDIO_TIMEOUT", &c.AudioTimeout)
	loadSeconds("TRANSLINK_CONNECT_TIMEOUT", &c.ConnectTimeout)

	c.CacheDir = GetEnvWithDefault("TRANSLINK_CACHE_DIR", c.CacheDir)
	c.SharedDir = GetEnvWithDefault("TRANSLINK_SHARED_DIR", c.SharedDir)

	// Load logging configuration from environment
	c.LogLevel = GetEnvWithDefault("TRANSLINK_LOG_LEVEL", c.LogLevel)

	if debug := os.Getenv("TRANSLINK_DEBUG"); debug != "" {
		c.EnableDebug = debug == "true" || debug == "1"
	}

	if quiet := os.Getenv("TRANSLINK_QUIET"); quiet != "" {
		c.QuietMode = quiet == "true" || quiet == "1"
	}

	c.LogFile = GetEnvWithDefault("TRANSLINK_LOG_FILE", c.LogFile)
}

func loadSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			*dst = time.Duration(s) * time.Second
		}
	}
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	for field, raw := range map[string]string{"api_url": c.APIBaseURL, "ws_url": c.ChannelURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return NewValidationErrorWithValue(field, "must be an absolute URL", raw)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return NewValidationErrorWithValue(field, "unsupported scheme", raw).
				WithSuggestion("Use http://, https://, ws:// or wss://")
		}
	}

	timeouts := map[string]time.Duration{
		"timeout":         c.DefaultTimeout,
		"upload_timeout":  c.UploadTimeout,
		"image_timeout":   c.ImageTimeout,
		"audio_timeout":   c.AudioTimeout,
		"connect_timeout": c.ConnectTimeout,
	}
	for field, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %v (must be > 0)", field, d)
		}
	}

	if c.CacheDir == "" {
		return fmt.Errorf("cache directory cannot be empty")
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d (must be >= 0)", c.RateLimit)
	}

	return nil
}
