// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Port            string
	CorpusDir       string
	StaticDir       string
	PromptsDir      string
	DefaultLocation string
	CORSOrigin      string
	ChatRPS         float64

	Log       LogConfig
	Index     IndexConfig
	LLM       LLMConfig
	WebSearch WebSearchConfig

	// NATSURL enables index event publishing when set.
	NATSURL string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// IndexConfig tunes the corpus indexer.
type IndexConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	MaxDepth      int
	Watch         bool
	WatchDebounce time.Duration
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// WebSearchConfig tunes the web search collaborator.
type WebSearchConfig struct {
	Enabled   bool
	URL       string
	Timeout   time.Duration
	RPS       float64
	CacheSize int
}

// Load reads envFile if it exists, then the environment. A missing file is
// not an error; existing environment variables win over file entries.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Port:            getEnv("PORT", "5001"),
		CorpusDir:       getEnv("CORPUS_DIR", "./masterni"),
		StaticDir:       getEnv("STATIC_DIR", "./dist/public"),
		PromptsDir:      getEnv("PROMPTS_DIR", "./prompts"),
		DefaultLocation: getEnv("DEFAULT_LOCATION", "北京"),
		CORSOrigin:      getEnv("CORS_ORIGIN", "*"),
		ChatRPS:         getEnvAsFloat("CHAT_RPS", 5),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Index: IndexConfig{
			ChunkSize:     getEnvAsInt("CHUNK_SIZE", 800),
			ChunkOverlap:  getEnvAsInt("CHUNK_OVERLAP", 200),
			MaxDepth:      getEnvAsInt("INDEX_MAX_DEPTH", 32),
			Watch:         getEnvAsBool("WATCH_CORPUS", false),
			WatchDebounce: getEnvAsDuration("WATCH_DEBOUNCE", 2*time.Second),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", getEnv("GEMINI_API_KEY", "")),
			BaseURL:     trimCompletionsPath(getEnv("LLM_BASE_URL", getEnv("GEMINI_API_URL", "https://llm.ai-nebula.com/v1"))),
			Model:       getEnv("LLM_MODEL", getEnv("GEMINI_MODEL", "gemini-3-flash-preview")),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:  getEnvAsInt("LLM_MAX_RETRIES", 1),
		},
		WebSearch: WebSearchConfig{
			Enabled:   getEnvAsBool("WEB_SEARCH_ENABLED", true),
			URL:       getEnv("WEB_SEARCH_URL", "https://html.duckduckgo.com/html/"),
			Timeout:   getEnvAsDuration("WEB_SEARCH_TIMEOUT", 10*time.Second),
			RPS:       getEnvAsFloat("WEB_SEARCH_RPS", 1),
			CacheSize: getEnvAsInt("WEB_SEARCH_CACHE", 128),
		},
		NATSURL: getEnv("NATS_URL", ""),
	}
	return cfg, nil
}

// trimCompletionsPath accepts either a base URL or the full completions
// endpoint the older GEMINI_API_URL setting expects.
func trimCompletionsPath(u string) string {
	u = strings.TrimRight(u, "/")
	return strings.TrimSuffix(u, "/chat/completions")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
