// Package config loads server configuration from environment variables and
// an optional .env file. Flags in cmd/server override the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port   int
	DBPath string

	// Expiry sweep tuning. The deadlines are measured from transaction
	// creation time.
	SweepInterval        time.Duration
	PaymentDeadline      time.Duration
	ConfirmationDeadline time.Duration

	// Point grants awarded by organizers expire after this many days.
	GrantTTLDays int

	// Directory where uploaded payment proofs are written.
	ProofDir string

	LogLevel string
}

// Load loads configuration from environment variables and a .env file if
// one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:                 getenvInt("PORT", 8080),
		DBPath:               getenv("DB_PATH", "ticketing.db"),
		SweepInterval:        getenvDuration("SWEEP_INTERVAL", 5*time.Minute),
		PaymentDeadline:      getenvDuration("PAYMENT_DEADLINE", 2*time.Hour),
		ConfirmationDeadline: getenvDuration("CONFIRMATION_DEADLINE", 72*time.Hour),
		GrantTTLDays:         getenvInt("POINT_GRANT_TTL_DAYS", 90),
		ProofDir:             getenv("PROOF_DIR", "./proofs"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
