package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	RedisAddr    string
	KafkaBrokers []string
	EventsTopic  string

	WebhookSecret      string
	JWTSecret          string
	InternalKey        string
	PaymentProviderURL string
	PaymentProviderKey string

	ReconcileInterval time.Duration
	SettingsFile      string
}

// Load reads the process configuration from the environment (and a .env
// file when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:             os.Getenv("DB_HOST"),
		DBUser:             os.Getenv("DB_USER"),
		DBPassword:         os.Getenv("DB_PASSWORD"),
		DBName:             os.Getenv("DB_NAME"),
		DBPort:             getenv("DB_PORT", "5432"),
		AppPort:            getenv("APP_PORT", "8080"),
		AppEnv:             getenv("APP_ENV", "development"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		KafkaBrokers:       splitCSV(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:        getenv("EVENTS_TOPIC", "storecore.events"),
		WebhookSecret:      os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		JWTSecret:          os.Getenv("SECRET_KEY"),
		InternalKey:        os.Getenv("INTERNAL_SECRET_KEY"),
		PaymentProviderURL: os.Getenv("PAYMENT_PROVIDER_URL"),
		PaymentProviderKey: os.Getenv("PAYMENT_PROVIDER_KEY"),
		SettingsFile:       os.Getenv("SETTINGS_FILE"),
	}

	interval, err := time.ParseDuration(getenv("RECONCILE_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	cfg.ReconcileInterval = interval

	if cfg.DBHost == "" {
		return nil, fmt.Errorf("environment variables not loaded properly: DB_HOST is empty")
	}

	return cfg, nil
}

// LoadConfig is Load for main packages: it exits on error.
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
