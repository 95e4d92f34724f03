// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the collector service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	CronSpec    string        // cron spec, e.g. "0 9,17 * * *"
	RunDeadline time.Duration // per-run collection deadline
	TestMode    bool          // short-circuit notification dispatch

	TeamsWebhookURL string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	EmailTo      string

	MaxDailyNotifications int // per-channel daily cap

	HighThreshold   int
	MediumThreshold int
	LowThreshold    int
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("COLLECTOR_PORT")
	if port == "" {
		port = "8082"
	}

	cronSpec := os.Getenv("COLLECT_CRON")
	if cronSpec == "" {
		cronSpec = "0 9,17 * * *" // twice daily, server local time
	}

	deadline := 10 * time.Minute
	if s := os.Getenv("RUN_DEADLINE"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("RUN_DEADLINE must be a positive duration, got %q", s)
		}
		deadline = d
	}

	cap, err := intEnv("MAX_DAILY_NOTIFICATIONS", 10)
	if err != nil {
		return nil, err
	}

	high, err := intEnv("SCORE_THRESHOLD_HIGH", 80)
	if err != nil {
		return nil, err
	}
	medium, err := intEnv("SCORE_THRESHOLD_MEDIUM", 60)
	if err != nil {
		return nil, err
	}
	low, err := intEnv("SCORE_THRESHOLD_LOW", 30)
	if err != nil {
		return nil, err
	}
	if high < medium || medium < low {
		return nil, fmt.Errorf("score thresholds must be ordered high ≥ medium ≥ low (got %d/%d/%d)", high, medium, low)
	}

	smtpPort := os.Getenv("SMTP_PORT")
	if smtpPort == "" {
		smtpPort = "587"
	}

	return &Config{
		Port:                  port,
		DatabaseURL:           dbURL,
		RedisURL:              redisURL,
		CronSpec:              cronSpec,
		RunDeadline:           deadline,
		TestMode:              os.Getenv("TEST_MODE") == "true",
		TeamsWebhookURL:       os.Getenv("TEAMS_WEBHOOK_URL"),
		SMTPHost:              os.Getenv("SMTP_HOST"),
		SMTPPort:              smtpPort,
		SMTPUser:              os.Getenv("SMTP_USER"),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		EmailTo:               os.Getenv("EMAIL_TO"),
		MaxDailyNotifications: cap,
		HighThreshold:         high,
		MediumThreshold:       medium,
		LowThreshold:          low,
	}, nil
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, s)
	}
	return v, nil
}
