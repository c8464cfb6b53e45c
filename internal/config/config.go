// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	// Storage
	DatabaseDriver string
	DatabaseURL    string

	// Collection
	WindowHours       int
	MaxItemsPerSource int
	FetchConcurrency  int
	FetchTimeout      time.Duration
	UserAgent         string

	// AI ranking
	AIProvider          string
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIFallbackModel string
	OpenAIBaseURL       string
	AITimeout           time.Duration
	GeminiAPIKey        string
	GeminiModel         string
	GeminiFallbackModel string
	AIMaxCandidates     int // 0 = all
	MaxAICallsPerDay    int // 0 = unlimited

	// Serving
	DictCacheTTL time.Duration
	HTTPAddr     string
	RunInterval  time.Duration // 0 disables the scheduler
	RunMode      string
	SeedFile     string

	Debug bool
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", "hunter.db"),

		WindowHours:       getEnvIntOrDefault("WINDOW_HOURS", 24),
		MaxItemsPerSource: getEnvIntOrDefault("MAX_ITEMS_PER_SOURCE", 50),
		FetchConcurrency:  getEnvIntOrDefault("FETCH_CONCURRENCY", 3),
		FetchTimeout:      time.Duration(getEnvIntOrDefault("FETCH_TIMEOUT_MS", 10000)) * time.Millisecond,
		UserAgent:         getEnvOrDefault("USER_AGENT", "policy-shorts-hunter/0.1"),

		AIProvider:          strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         getEnvOrDefault("OPENAI_MODEL", "gpt-4.1-mini"),
		OpenAIFallbackModel: getEnvOrDefault("OPENAI_FALLBACK_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		AITimeout:           time.Duration(getEnvIntOrDefault("OPENAI_TIMEOUT_MS", 30000)) * time.Millisecond,
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiFallbackModel: getEnvOrDefault("GEMINI_FALLBACK_MODEL", "gemini-1.5-flash-8b"),
		AIMaxCandidates:     getEnvIntOrDefault("AI_MAX_CANDIDATES", 0),
		MaxAICallsPerDay:    getEnvIntOrDefault("MAX_AI_CALLS_PER_DAY", 0),

		DictCacheTTL: getEnvDurationOrDefault("DICT_CACHE_TTL", 5*time.Minute),
		HTTPAddr:     getEnvOrDefault("HTTP_ADDR", ":8080"),
		RunInterval:  getEnvDurationOrDefault("RUN_INTERVAL", 0),
		RunMode:      getEnvOrDefault("RUN_MODE", "collect_only"),
		SeedFile:     getEnvOrDefault("SEED_FILE", "configs/seed.yaml"),
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

// AIModels returns the primary and fallback model of the selected provider.
func (c *Config) AIModels() (primary, fallback string) {
	if c.AIProvider == ProviderGemini {
		return c.GeminiModel, c.GeminiFallbackModel
	}
	return c.OpenAIModel, c.OpenAIFallbackModel
}

// AIKey returns the credential of the selected provider, empty when unset.
func (c *Config) AIKey() string {
	if c.AIProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Validate checks ranges only. A missing AI key is not an error here: it
// only disables the ai_rank mode.
func (c *Config) Validate() error {
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("DATABASE_DRIVER must be 'sqlite' or 'postgres'")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.WindowHours < 1 || c.WindowHours > 24*30 {
		return fmt.Errorf("WINDOW_HOURS must be between 1 and 720")
	}
	if c.MaxItemsPerSource < 1 {
		return fmt.Errorf("MAX_ITEMS_PER_SOURCE must be positive")
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive")
	}
	if c.FetchTimeout <= 0 || c.AITimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_MS and OPENAI_TIMEOUT_MS must be positive")
	}
	if c.AIProvider != ProviderOpenAI && c.AIProvider != ProviderGemini {
		return fmt.Errorf("AI_PROVIDER must be 'openai' or 'gemini'")
	}
	if c.AIMaxCandidates < 0 {
		return fmt.Errorf("AI_MAX_CANDIDATES must not be negative")
	}
	if c.RunMode != "collect_only" && c.RunMode != "ai_rank" {
		return fmt.Errorf("RUN_MODE must be 'collect_only' or 'ai_rank'")
	}
	return nil
}
