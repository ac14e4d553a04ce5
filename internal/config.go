package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Payment providers.
const (
	PaymentRazorpay = "razorpay"
	PaymentStripe   = "stripe"
	PaymentMock     = "mock"
	PaymentNone     = "none"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Application base URL
	BaseURL string

	// Store selection
	StoreDriver   string // "postgres", "mongo" or "memory"
	DatabaseUrl   string
	MongoURI      string
	MongoDatabase string

	// Sessions
	SessionDuration time.Duration

	// Admin access control
	AdminEmails []string // List of email addresses granted the admin role at signup

	// Payment provider configuration
	PaymentProvider       string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string // Defaults to the key secret
	StripeSecretKey       string
	StripeWebhookSecret   string
	StripePublishableKey  string

	// Price catalogue, in minor currency units
	PaymentCurrency    string
	VolunteerPlusPrice int64
	NGOPlusPrice       int64

	// Settings cache freshness
	SettingsCacheTTL time.Duration

	// Login and signup attempts per client IP per minute
	AuthRateLimitPerMinute int

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// IsSecure reports whether cookies should carry the Secure flag.
func (c *Config) IsSecure() bool {
	return c.Env != "development"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		DatabaseUrl:   os.Getenv("DATABASE_URL"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "ngolink"),

		SessionDuration: getEnvDuration("SESSION_DURATION", 7*24*time.Hour),

		PaymentProvider:      strings.ToLower(getEnv("PAYMENT_PROVIDER", PaymentRazorpay)),
		RazorpayKeyID:        getEnv("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:    getEnv("RAZORPAY_KEY_SECRET", ""),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),

		PaymentCurrency:    strings.ToUpper(getEnv("PAYMENT_CURRENCY", "INR")),
		VolunteerPlusPrice: getEnvInt64("VOLUNTEER_PLUS_PRICE", 19900),
		NGOPlusPrice:       getEnvInt64("NGO_PLUS_PRICE", 99900),

		SettingsCacheTTL:       getEnvDuration("SETTINGS_CACHE_TTL", time.Minute),
		AuthRateLimitPerMinute: getEnvInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}
	cfg.RazorpayWebhookSecret = getEnv("RAZORPAY_WEBHOOK_SECRET", cfg.RazorpayKeySecret)

	// Parse admin emails from comma-separated environment variable
	for _, email := range strings.Split(getEnv("ADMIN_EMAILS", ""), ",") {
		if trimmed := strings.TrimSpace(strings.ToLower(email)); trimmed != "" {
			cfg.AdminEmails = append(cfg.AdminEmails, trimmed)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is 'postgres'")
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_URI and MONGO_DATABASE are required when STORE_DRIVER is 'mongo'")
		}
	case StoreMemory:
		if c.Env == "production" {
			return fmt.Errorf("STORE_DRIVER 'memory' is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be 'postgres', 'mongo' or 'memory', got: %s", c.StoreDriver)
	}

	switch c.PaymentProvider {
	case PaymentRazorpay:
		if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
			return fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required when PAYMENT_PROVIDER is 'razorpay'")
		}
	case PaymentStripe:
		if c.StripeSecretKey == "" || c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required when PAYMENT_PROVIDER is 'stripe'")
		}
	case PaymentMock:
		if c.Env == "production" {
			return fmt.Errorf("PAYMENT_PROVIDER 'mock' is not allowed in production")
		}
	case PaymentNone:
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be 'razorpay', 'stripe', 'mock' or 'none', got: %s", c.PaymentProvider)
	}

	if c.PaymentProvider != PaymentNone && (c.VolunteerPlusPrice <= 0 || c.NGOPlusPrice <= 0) {
		return fmt.Errorf("VOLUNTEER_PLUS_PRICE and NGO_PLUS_PRICE must be positive")
	}
	if c.SessionDuration <= 0 {
		return fmt.Errorf("SESSION_DURATION must be positive")
	}
	if c.AuthRateLimitPerMinute < 1 {
		return fmt.Errorf("AUTH_RATE_LIMIT_PER_MINUTE must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
