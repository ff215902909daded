// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the pipeline needs at startup.
type Config struct {
	TranscribeURL     string
	TranscribeKey     string
	TranscribeTimeout time.Duration

	AnalyzeURL     string
	AnalyzeKey     string
	AnalyzeModel   string
	AnalyzeTimeout time.Duration
	// AnalyzeMaxChars caps a single analysis request; longer transcripts are chunked.
	AnalyzeMaxChars int

	WorkspaceRoot string
	StorageDir    string
	RedisAddr     string

	// RetryMax bounds retries of upstream transport failures per stage.
	RetryMax int
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		TranscribeURL:     os.Getenv("TRANSCRIBE_API_URL"),
		TranscribeKey:     os.Getenv("TRANSCRIBE_API_KEY"),
		TranscribeTimeout: durationEnv("TRANSCRIBE_TIMEOUT", 2*time.Minute),
		AnalyzeURL:        os.Getenv("ANALYZE_API_URL"),
		AnalyzeKey:        os.Getenv("ANALYZE_API_KEY"),
		AnalyzeModel:      stringEnv("ANALYZE_MODEL", "deepseek-r1-distill-llama-70b"),
		AnalyzeTimeout:    durationEnv("ANALYZE_TIMEOUT", 90*time.Second),
		AnalyzeMaxChars:   intEnv("ANALYZE_MAX_CHARS", 15000),
		WorkspaceRoot:     stringEnv("WORKSPACE_ROOT", filepath.Join(os.TempDir(), "sermonpipe")),
		StorageDir:        stringEnv("STORAGE_DIR", "artifacts"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RetryMax:          intEnv("RETRY_MAX", 3),
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.TranscribeURL == "" {
		return fmt.Errorf("TRANSCRIBE_API_URL is not configured")
	}
	if c.AnalyzeURL == "" {
		return fmt.Errorf("ANALYZE_API_URL is not configured")
	}
	if c.TranscribeTimeout <= 0 || c.AnalyzeTimeout <= 0 {
		return fmt.Errorf("upstream timeouts must be positive")
	}
	if c.AnalyzeMaxChars <= 0 {
		return fmt.Errorf("ANALYZE_MAX_CHARS must be positive")
	}
	return nil
}

// RedisAddr reads only the job-index address; commands that never run
// the pipeline do not need the full endpoint configuration.
func RedisAddr() string {
	_ = godotenv.Load()
	return os.Getenv("REDIS_ADDR")
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
