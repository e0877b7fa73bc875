package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret       string
	AdminEmails     []string
	AdminRatePerSec float64

	LogLevel  string
	LogFormat string

	Scheduler Scheduler
}

// Scheduler tunes the poll loop and recovery.
type Scheduler struct {
	PollInterval   time.Duration
	MaxConcurrent  int
	BatchSize      int
	MaxRetries     int
	RetryBackoff   []time.Duration
	StaleThreshold time.Duration
	SweepInterval  time.Duration
}

// Load reads the environment, after merging a .env file if present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	var err error
	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		CORSAllowedOrigins:   splitList(getenv("CORS_ALLOWED_ORIGINS", "")),
		AdminEmails:          splitList(getenv("ADMIN_EMAILS", "")),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogFormat:            getenv("LOG_FORMAT", "console"),
	}

	if cfg.DatabaseURL, err = requireEnv("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.AdminRatePerSec, err = getFloat("ADMIN_RATE_PER_SEC", 5); err != nil {
		return Config{}, err
	}

	s := &cfg.Scheduler
	if s.PollInterval, err = getDuration("POLL_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if s.MaxConcurrent, err = getPositiveInt("MAX_CONCURRENT", 5); err != nil {
		return Config{}, err
	}
	if s.BatchSize, err = getPositiveInt("BATCH_SIZE", 10); err != nil {
		return Config{}, err
	}
	if s.MaxRetries, err = getInt("MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if s.MaxRetries < 0 {
		return Config{}, fmt.Errorf("MAX_RETRIES: must not be negative")
	}
	if s.RetryBackoff, err = getDurations("RETRY_BACKOFF", "1m,5m,15m"); err != nil {
		return Config{}, err
	}
	if s.StaleThreshold, err = getDuration("STALE_THRESHOLD", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if s.SweepInterval, err = getDuration("SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func requireEnv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("missing env: %s", key)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getPositiveInt(key string, def int) (int, error) {
	n, err := getInt(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %d", key, n)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}

func getDurations(key, def string) ([]time.Duration, error) {
	parts := splitList(getenv(key, def))
	if len(parts) == 0 {
		return nil, fmt.Errorf("%s: empty", key)
	}
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s: %q must be positive", key, p)
		}
		out = append(out, d)
	}
	return out, nil
}
