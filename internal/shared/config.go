package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	// LLM gateway
	LLMProvider    string // openai|gemini
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	GeminiKey      string
	GeminiBaseURL  string
	GeminiModel    string
	LLMTimeout     time.Duration
	LLMMaxTokens   int
	LLMTemperature float32

	// pipeline
	InputMode  string // loose|strict
	BandMode   string // default|strict
	TuningFile string

	// geocoding collaborator
	GeocodeBase string
	GeocodeKey  string
	GeocodeRPS  int
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration
	CacheSize   int

	CORSOrigins []string
}

// Load reads the environment after merging an optional .env file. Missing API
// keys are not fatal: the service degrades to heuristic estimates.
func Load() Config {
	_ = godotenv.Load() // .env is optional

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),

		LLMProvider:    strings.ToLower(env("LLM_PROVIDER", "openai")),
		OpenAIKey:      env("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  env("OPENAI_BASE_URL", ""),
		OpenAIModel:    env("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiKey:      env("GEMINI_API_KEY", ""),
		GeminiBaseURL:  env("GEMINI_BASE_URL", ""),
		GeminiModel:    env("GEMINI_MODEL", "gemini-2.0-flash"),
		LLMTimeout:     time.Duration(atoi("LLM_TIMEOUT_SECONDS", 25)) * time.Second,
		LLMMaxTokens:   atoi("LLM_MAX_OUTPUT_TOKENS", 800),
		LLMTemperature: float32(atoi("LLM_TEMPERATURE_PCT", 20)) / 100,

		InputMode:  strings.ToLower(env("INPUT_MODE", "loose")),
		BandMode:   strings.ToLower(env("BAND_MODE", "default")),
		TuningFile: env("TUNING_FILE", ""),

		GeocodeBase: env("GEOCODE_BASE_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
		GeocodeKey:  env("GOOGLE_MAPS_API_KEY", ""),
		GeocodeRPS:  atoi("GEOCODE_RPS", 10),
		RedisAddr:   env("REDIS_ADDR", ""),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 86400)) * time.Second,
		CacheSize:   atoi("CACHE_SIZE", 4096),

		CORSOrigins: csv(env("CORS_ALLOW_ORIGINS", "*")),
	}
	if c.APIKey() == "" {
		log.Warn().Str("provider", c.LLMProvider).Msg("no LLM API key; every estimate uses the heuristic fallback")
	}
	if c.GeocodeKey == "" {
		log.Warn().Msg("GOOGLE_MAPS_API_KEY is empty; /api/geocode is disabled")
	}
	return c
}

// APIKey is the key of the selected LLM provider.
func (c Config) APIKey() string {
	if c.LLMProvider == "gemini" {
		return c.GeminiKey
	}
	return c.OpenAIKey
}

// RequestTimeout bounds a whole HTTP request: two LLM attempts plus slack.
func (c Config) RequestTimeout() time.Duration {
	return 2*c.LLMTimeout + 5*time.Second
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func csv(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
