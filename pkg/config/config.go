package config

import (
	"os"
	"strconv"
)

// Config holds process-level configuration.
type Config struct {
	LogLevel       string
	ChainsFile     string
	RecordStore    string
	RedisURL       string
	EnvelopeMaxAge int64
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("ATEL_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	chainsFile := os.Getenv("ATEL_CHAINS_FILE")
	if chainsFile == "" {
		chainsFile = "chains.yaml"
	}

	recordStore := os.Getenv("ATEL_RECORD_STORE")
	if recordStore == "" {
		// Local SQLite file next to the process.
		recordStore = "atel-records.db"
	}

	maxAge := int64(300)
	if raw := os.Getenv("ATEL_ENVELOPE_MAX_AGE_SEC"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			maxAge = parsed
		}
	}

	return &Config{
		LogLevel:       logLevel,
		ChainsFile:     chainsFile,
		RecordStore:    recordStore,
		RedisURL:       os.Getenv("ATEL_REDIS_URL"),
		EnvelopeMaxAge: maxAge,
	}
}
