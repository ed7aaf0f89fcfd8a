package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"taxquery-backend/internal/analytics"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	// Analytics service
	AnalyticsBaseURL string
	AnalyticsTimeout time.Duration
	// Optional replacement for the built-in intent vocabulary
	IntentVocabularyFile string
	// Database
	DatabaseURL   string
	MigrationsDir string // empty uses the migrations built into the binary
	RunMigrations bool
	// Transcript files, used when no database is configured
	TranscriptDir string
	SessionTTL    time.Duration
	// NATS event publishing
	NatsURL           string
	NatsToken         string
	NatsSubjectPrefix string
	// Problems found while loading, for the caller to log once its logger
	// is set up.
	Warnings []string
}

func Load() Config {
	_ = godotenv.Load()
	var warnings []string
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getEnvDurationDefault(key, def)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid duration for %s, using %s: %v", key, def, err))
		}
		return d
	}
	cfg := Config{
		Port:                 getEnvDefault("PORT", "8080"),
		AllowedOrigins:       getEnvListDefault("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:             getEnvDefault("LOG_LEVEL", "info"),
		AnalyticsBaseURL:     getEnvDefault("ANALYTICS_BASE_URL", analytics.DefaultBaseURL),
		AnalyticsTimeout:     duration("ANALYTICS_TIMEOUT", 60*time.Second),
		IntentVocabularyFile: os.Getenv("INTENT_VOCABULARY_FILE"),
		DatabaseURL:          os.Getenv("DB_URL"),
		MigrationsDir:        os.Getenv("DB_MIGRATIONS_DIR"),
		RunMigrations:        getEnvBoolDefault("DB_RUN_MIGRATIONS", true),
		TranscriptDir:        getEnvDefault("TRANSCRIPT_DIR", "data/transcripts"),
		SessionTTL:           duration("SESSION_TTL", 30*time.Minute),
		NatsURL:              os.Getenv("NATS_URL"),
		NatsToken:            os.Getenv("NATS_TOKEN"),
		NatsSubjectPrefix:    getEnvDefault("NATS_SUBJECT_PREFIX", "taxquery.conversation"),
	}
	if os.Getenv("ANALYTICS_BASE_URL") == "" {
		warnings = append(warnings, "ANALYTICS_BASE_URL is not set, using the public analytics service at "+cfg.AnalyticsBaseURL)
	}
	cfg.Warnings = warnings
	return cfg
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// getEnvDurationDefault returns def along with the parse error when the
// value is not a valid duration.
func getEnvDurationDefault(key string, def time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return def, err
		}
		return d, nil
	}
	return def, nil
}
