package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs        LogConfig
	DB          DBConfig
	Stripe      StripeConfig
	Vision      VisionConfig
	Entitlement EntitlementConfig
	QueueURL    string
	Port        string
}

type LogConfig struct {
	Style string
	Level string
}

// DBConfig selects the backing store. Driver is "postgres" (default) or "sqlite".
type DBConfig struct {
	Driver     string
	Username   string
	Password   string
	URL        string
	Port       string
	Name       string
	SSLMode    string
	SQLitePath string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
	Timeout       time.Duration
}

// VisionConfig points at an OpenAI-compatible endpoint (directly or through a key proxy).
type VisionConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	ChatModel    string
	Timeout      time.Duration
	MaxDimension int
	JPEGQuality  int
}

type EntitlementConfig struct {
	MaxFreeUses int
}

const (
	defaultVisionModel   = "gpt-4o"
	defaultChatModel     = "gpt-4o-mini"
	defaultVisionTimeout = 60 * time.Second
	defaultStripeTimeout = 10 * time.Second
	defaultMaxDimension  = 1024
	defaultJPEGQuality   = 80
	defaultMaxFreeUses   = 1
)

func LoadConfig() (*Config, error) {
	visionTimeout, err := secondsEnv("VISION_TIMEOUT_SECONDS", defaultVisionTimeout)
	if err != nil {
		return nil, err
	}
	stripeTimeout, err := secondsEnv("STRIPE_TIMEOUT_SECONDS", defaultStripeTimeout)
	if err != nil {
		return nil, err
	}
	maxDimension, err := intEnv("VISION_MAX_DIMENSION", defaultMaxDimension)
	if err != nil {
		return nil, err
	}
	quality, err := intEnv("VISION_JPEG_QUALITY", defaultJPEGQuality)
	if err != nil {
		return nil, err
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("VISION_JPEG_QUALITY must be within 1..100, got %d", quality)
	}
	maxFree, err := intEnv("MAX_FREE_USES", defaultMaxFreeUses)
	if err != nil {
		return nil, err
	}
	if maxFree < 0 {
		return nil, fmt.Errorf("MAX_FREE_USES must not be negative, got %d", maxFree)
	}

	cfg := &Config{
		QueueURL: os.Getenv("QUEUE_URL"),
		Port:     envOr("PORT", "8080"),
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: DBConfig{
			Driver:     strings.ToLower(envOr("DB_DRIVER", "postgres")),
			Username:   os.Getenv("POSTGRES_USER"),
			Password:   os.Getenv("POSTGRES_PWD"),
			URL:        os.Getenv("POSTGRES_URL"),
			Port:       envOr("POSTGRES_PORT", "5432"),
			Name:       os.Getenv("POSTGRES_DB"),
			SSLMode:    envOr("POSTGRES_SSLMODE", "require"),
			SQLitePath: os.Getenv("SQLITE_PATH"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			FrontendURL:   os.Getenv("FRONTEND_URL"),
			Timeout:       stripeTimeout,
		},
		Vision: VisionConfig{
			BaseURL:      os.Getenv("VISION_BASE_URL"),
			APIKey:       os.Getenv("VISION_API_KEY"),
			Model:        envOr("VISION_MODEL", defaultVisionModel),
			ChatModel:    envOr("VISION_CHAT_MODEL", defaultChatModel),
			Timeout:      visionTimeout,
			MaxDimension: maxDimension,
			JPEGQuality:  quality,
		},
		Entitlement: EntitlementConfig{
			MaxFreeUses: maxFree,
		},
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("error converting string to int: %s: %w", key, err)
	}
	return n, nil
}

func secondsEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("error converting string to int: %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return time.Duration(n) * time.Second, nil
}
