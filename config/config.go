package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration values.
type Config struct {
	// Hugging Face inference
	HuggingFaceURL    string
	HuggingFaceAPIKey string

	// Backblaze B2
	BackblazeKeyID    string
	BackblazeAppKey   string
	BackblazeBucketID string

	// Pipeline
	DBPath     string
	InboxDir   string
	Schedule   string
	MaxEdge    int
	ListenAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		HuggingFaceURL:    getEnv("HUGGINGFACE_URL", "https://api-inference.huggingface.co/models/briaai/RMBG-1.4"),
		HuggingFaceAPIKey: getEnv("HUGGINGFACE_API_KEY", ""),

		BackblazeKeyID:    getEnv("BACKBLAZE_KEY_ID", ""),
		BackblazeAppKey:   getEnv("BACKBLAZE_APP_KEY", ""),
		BackblazeBucketID: getEnv("BACKBLAZE_BUCKET_ID", ""),

		DBPath:     getEnv("LAYERSPLITTER_DB", "layersplitter.db"),
		InboxDir:   getEnv("LAYERSPLITTER_INBOX", "input"),
		Schedule:   getEnv("LAYERSPLITTER_SCHEDULE", "@every 15m"),
		MaxEdge:    getEnvInt("LAYERSPLITTER_MAX_EDGE", 1024),
		ListenAddr: getEnv("LAYERSPLITTER_ADDR", ":8080"),

		LogFile:  getEnv("LAYERSPLITTER_LOG_FILE", "logs/layersplitter.log"),
		LogLevel: parseLogLevel(getEnv("LAYERSPLITTER_LOG_LEVEL", "INFO")),
	}
}

// MissingCredentials names the credential variables that are unset. The
// original deployment warns on each rather than refusing to start.
func (c Config) MissingCredentials() []string {
	var missing []string
	if c.HuggingFaceAPIKey == "" {
		missing = append(missing, "HUGGINGFACE_API_KEY")
	}
	if c.BackblazeKeyID == "" {
		missing = append(missing, "BACKBLAZE_KEY_ID")
	}
	if c.BackblazeAppKey == "" {
		missing = append(missing, "BACKBLAZE_APP_KEY")
	}
	if c.BackblazeBucketID == "" {
		missing = append(missing, "BACKBLAZE_BUCKET_ID")
	}
	return missing
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
