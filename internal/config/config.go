package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	HTTPTimeout time.Duration
	LogLevel    slog.Level

	DataSource  string
	DatabaseURL string

	SnapshotURL    string
	SnapshotFile   string
	IngestSchedule string
	SinkURL        string
	SinkSecret     string

	ScoringConfigFile string
	CORSOrigins       []string

	AI AIConfig
}

// AIConfig holds the LLM provider and cache settings for the summary pipeline.
type AIConfig struct {
	APIURL            string
	APIKey            string
	APIKeyInsight     string
	APIKeyReco        string
	ModelInsight      string
	ModelReco         string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RemoteEnabled     bool
	RedisURL          string
	RedisPassword     string
	RemoteTimeout     time.Duration
	Locale            string
	UseResponseFormat bool
}

// InsightKey falls back to the default key.
func (c AIConfig) InsightKey() string {
	if c.APIKeyInsight != "" {
		return c.APIKeyInsight
	}
	return c.APIKey
}

func (c AIConfig) RecoKey() string {
	if c.APIKeyReco != "" {
		return c.APIKeyReco
	}
	return c.APIKey
}

// DefaultAI returns the AI settings with every default applied and no credentials.
func DefaultAI() AIConfig {
	return AIConfig{
		Timeout:       8000 * time.Millisecond,
		CacheTTL:      300000 * time.Millisecond,
		RemoteEnabled: true,
		RemoteTimeout: 700 * time.Millisecond,
		Locale:        "th-TH",
	}
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				slog.Warn("env file ignored", slog.String("file", f), slog.String("err", err.Error()))
			}
		}
	}
	return FromEnv()
}

func FromEnv() Config {
	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	lvl := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = slog.LevelDebug
	}

	def := DefaultAI()
	ai := AIConfig{
		APIURL:            os.Getenv("AI_API_URL"),
		APIKey:            os.Getenv("AI_API_KEY"),
		APIKeyInsight:     os.Getenv("AI_API_KEY_INSIGHT"),
		APIKeyReco:        os.Getenv("AI_API_KEY_RECO"),
		ModelInsight:      os.Getenv("AI_MODEL_INSIGHT"),
		ModelReco:         os.Getenv("AI_MODEL_RECO"),
		Timeout:           envMillis("AI_TIMEOUT_MS", def.Timeout),
		CacheTTL:          envMillis("AI_CACHE_TTL_MS", def.CacheTTL),
		RemoteEnabled:     envBool("AI_CACHE_REMOTE_ENABLED", def.RemoteEnabled),
		RedisURL:          os.Getenv("AI_CACHE_REDIS_URL"),
		RedisPassword:     os.Getenv("AI_CACHE_REDIS_PASSWORD"),
		RemoteTimeout:     envMillis("AI_CACHE_REMOTE_TIMEOUT_MS", def.RemoteTimeout),
		Locale:            envOr("APP_LOCALE", def.Locale),
		UseResponseFormat: envBool("AI_USE_RESPONSE_FORMAT", false),
	}

	return Config{
		Port:              envOr("PORT", "8080"),
		HTTPTimeout:       to,
		LogLevel:          lvl,
		DataSource:        envOr("DATA_SOURCE", "memory"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SnapshotURL:       os.Getenv("SNAPSHOT_URL"),
		SnapshotFile:      os.Getenv("SNAPSHOT_FILE"),
		IngestSchedule:    os.Getenv("INGEST_SCHEDULE"),
		SinkURL:           os.Getenv("SINK_URL"),
		SinkSecret:        os.Getenv("SINK_SECRET"),
		ScoringConfigFile: os.Getenv("SCORING_CONFIG_FILE"),
		CORSOrigins:       splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
		AI:                ai,
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envMillis(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n * float64(time.Millisecond))
}

func envBool(k string, def bool) bool {
	v, ok := os.LookupEnv(k)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
