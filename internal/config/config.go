package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName      string
	AppEnv       string
	AppURL       string
	Port         string
	AppNamespace string // Tag written into checkout metadata, used to filter shared gateway traffic
	Currency     string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Auth (tokens are issued by the external identity provider)
	AuthJWTSecret string
	AuthJWTIssuer string

	// Payment
	PaymentProvider string // "stripe" or "polar"
	// Payment - Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	// Payment - Polar
	PolarAPIKey           string
	PolarWebhookSecret    string
	PolarSandboxMode      bool
	PolarProductIDDeposit string // Pay-what-you-want product used for deposits

	// Reconciliation
	CheckoutTimeout          time.Duration
	WebhookTimeout           time.Duration
	WebhookConcurrency       int
	ConfirmTrustClientAmount bool
	AuditInterval            time.Duration

	// Rate limiting
	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN string

	// Receipt archive (optional, S3-compatible: MinIO, AWS S3, Cloudflare R2, etc.)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName:      envString("APP_NAME", "DreamSaver"),
		AppEnv:       envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:       envRequired("APP_URL"), // Required: base URL for checkout redirects
		Port:         envString("PORT", "8090"),
		AppNamespace: envString("APP_NAMESPACE", "dreamsaver"),
		Currency:     envString("CURRENCY", "usd"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/dreamsaver.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Auth
		AuthJWTSecret: envRequired("AUTH_JWT_SECRET"),
		AuthJWTIssuer: envString("AUTH_JWT_ISSUER", ""),

		// Payment
		PaymentProvider:       envString("PAYMENT_PROVIDER", "stripe"),
		StripeSecretKey:       envString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:   envString("STRIPE_WEBHOOK_SECRET", ""),
		PolarAPIKey:           envString("POLAR_API_KEY", ""),
		PolarWebhookSecret:    envString("POLAR_WEBHOOK_SECRET", ""),
		PolarSandboxMode:      envBool("POLAR_SANDBOX_MODE", envString("APP_ENV", "development") == "development"),
		PolarProductIDDeposit: envString("POLAR_PRODUCT_ID_DEPOSIT", ""),

		// Reconciliation
		CheckoutTimeout:          envDuration("CHECKOUT_TIMEOUT", 10*time.Second),
		WebhookTimeout:           envDuration("WEBHOOK_TIMEOUT", 20*time.Second),
		WebhookConcurrency:       envInt("WEBHOOK_CONCURRENCY", 4),
		ConfirmTrustClientAmount: envBool("CONFIRM_TRUST_CLIENT_AMOUNT", false),
		AuditInterval:            envDuration("AUDIT_INTERVAL", 1*time.Hour), // 0 disables the audit chore

		// Rate limiting
		CheckoutRateLimit:  envInt("CHECKOUT_RATE_LIMIT", 10),
		CheckoutRateWindow: envDuration("CHECKOUT_RATE_WINDOW", 1*time.Minute),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Receipt archive
		S3Region:    envString("S3_REGION", "us-east-1"),
		S3Bucket:    envString("S3_BUCKET", ""),
		S3AccessKey: envString("S3_ACCESS_KEY", ""),
		S3SecretKey: envString("S3_SECRET_KEY", ""),
		S3Endpoint:  envString("S3_ENDPOINT", ""),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows email to use log mode for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}

	if cfg.PaymentProvider == "stripe" && cfg.StripeWebhookSecret == "" {
		slog.Error("production deployment requires STRIPE_WEBHOOK_SECRET")
		os.Exit(1)
	}

	if cfg.PaymentProvider == "polar" && cfg.PolarWebhookSecret == "" {
		slog.Error("production deployment requires POLAR_WEBHOOK_SECRET")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ReceiptArchiveEnabled reports whether deposit receipts should be copied to object storage.
func (c *Config) ReceiptArchiveEnabled() bool {
	return c.S3Bucket != ""
}
