package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the gateway service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	// Transport selects the upstream: "bedrock", "loopback", or "auto"
	// (bedrock when AWS credentials resolve, loopback otherwise).
	Transport          string
	AWSRegion          string
	BedrockModelID     string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string

	MaxTokens   int
	TopP        float64
	Temperature float64

	AudioQueueCapacity       int
	SessionInactivityTimeout time.Duration
	ReaperInterval           time.Duration

	SystemPrompt string
	DatabaseURL  string
	DataDir      string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "novagate"),
		AllowAnyOrigin:           false,
		Transport:                envOrDefault("APP_TRANSPORT", "auto"),
		AWSRegion:                envOrDefault("AWS_REGION", "us-east-1"),
		BedrockModelID:           envOrDefault("BEDROCK_MODEL_ID", "amazon.nova-sonic-v1:0"),
		AWSAccessKeyID:           stringsTrimSpace("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:       stringsTrimSpace("AWS_SECRET_ACCESS_KEY"),
		AWSSessionToken:          stringsTrimSpace("AWS_SESSION_TOKEN"),
		MaxTokens:                1024,
		TopP:                     0.9,
		Temperature:              0.7,
		AudioQueueCapacity:       200,
		SessionInactivityTimeout: 5 * time.Minute,
		ReaperInterval:           time.Minute,
		ShutdownTimeout:          15 * time.Second,
		SystemPrompt:             stringsTrimSpace("SYSTEM_PROMPT"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		DataDir:                  envOrDefault("APP_DATA_DIR", "data"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReaperInterval, err = durationFromEnv("APP_REAPER_INTERVAL", cfg.ReaperInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioQueueCapacity, err = intFromEnv("APP_AUDIO_QUEUE_CAP", cfg.AudioQueueCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTokens, err = intFromEnv("APP_MAX_TOKENS", cfg.MaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.TopP, err = floatFromEnv("APP_TOP_P", cfg.TopP)
	if err != nil {
		return Config{}, err
	}
	cfg.Temperature, err = floatFromEnv("APP_TEMPERATURE", cfg.Temperature)
	if err != nil {
		return Config{}, err
	}

	switch cfg.Transport {
	case "auto", "bedrock", "loopback":
	default:
		return Config{}, fmt.Errorf("APP_TRANSPORT must be auto, bedrock or loopback")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.ReaperInterval <= 0 {
		return Config{}, fmt.Errorf("APP_REAPER_INTERVAL must be positive")
	}
	if cfg.AudioQueueCapacity <= 0 {
		return Config{}, fmt.Errorf("APP_AUDIO_QUEUE_CAP must be positive")
	}
	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_TOKENS must be positive")
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		return Config{}, fmt.Errorf("APP_TOP_P must be in (0, 1]")
	}
	if cfg.Temperature < 0 {
		return Config{}, fmt.Errorf("APP_TEMPERATURE must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
