package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DBUrl            string
	JWTSecret        string
	StripeSecretKey  string
	StripeAPIBase    string
	PayoutReturnURL  string
	PayoutRefreshURL string
	AppEnv           string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	stripeKey, exists := os.LookupEnv("STRIPE_SECRET_KEY")
	if !exists || stripeKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DBUrl:            getEnv("DB_URL", ""),
		JWTSecret:        jwtSecret,
		StripeSecretKey:  stripeKey,
		StripeAPIBase:    getEnv("STRIPE_API_BASE", ""),
		PayoutReturnURL:  getEnv("PAYOUT_RETURN_URL", ""),
		PayoutRefreshURL: getEnv("PAYOUT_REFRESH_URL", ""),
		AppEnv:           normalizeEnv(getEnv("APP_ENV", "production")),
	}, nil
}

// IsProduction gates the noisy surfaces: the per-request logger and the
// startup banner stay off in production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
