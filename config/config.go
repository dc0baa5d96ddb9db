package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Durable key-value backend. Both must be set to leave fallback-only mode.
	DurableBackendURL   string
	DurableBackendToken string

	JWTSecret string

	KafkaBroker  string
	ResendAPIKey string
	MailFrom     string

	BaseURL string

	OrderTTLDays         int
	DownloadTokenMinutes int
}

func Load() *Config {
	// Load .env file if exists
	_ = godotenv.Load()

	orderTTLDays, _ := strconv.Atoi(getEnv("ORDER_TTL_DAYS", "7"))
	tokenMinutes, _ := strconv.Atoi(getEnv("DOWNLOAD_TOKEN_TTL_MINUTES", "30"))

	return &Config{
		Port:                 getEnv("PORT", "3009"),
		DurableBackendURL:    getEnv("DURABLE_BACKEND_URL", ""),
		DurableBackendToken:  getEnv("DURABLE_BACKEND_TOKEN", ""),
		JWTSecret:            getEnv("JWT_SECRET", "secret"),
		KafkaBroker:          getEnv("KAFKA_BROKER", ""),
		ResendAPIKey:         getEnv("RESEND_API_KEY", ""),
		MailFrom:             getEnv("MAIL_FROM", "Leve1Up <onboarding@resend.dev>"),
		BaseURL:              getEnv("BASE_URL", "http://localhost:3009"),
		OrderTTLDays:         orderTTLDays,
		DownloadTokenMinutes: tokenMinutes,
	}
}

// DurableConfigured reports whether the remote key-value backend is usable.
// Missing credentials are not an error: every store silently degrades to its
// in-process fallback.
func (c *Config) DurableConfigured() bool {
	return c.DurableBackendURL != "" && c.DurableBackendToken != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
