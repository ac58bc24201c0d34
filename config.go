package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sales-service/database"
	awspkg "sales-service/pkg/aws"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the sales service.
type Config struct {
	Port     string
	Env      string
	Postgres database.PostgresConfig

	InventoryURL             string
	InventoryReconnectBase   time.Duration
	InventoryReconnectMax    time.Duration
	InventoryReplyTimeout    time.Duration
	InventoryEchoesCorrelate bool

	HubPath         string
	HubWriteTimeout time.Duration
	HubSendBuffer   int

	RequestTimeout time.Duration

	// Optional integrations; empty disables them.
	RedisURL         string
	KafkaBrokers     []string
	SalesEventsTopic string
	SalesSNSTopicARN string
}

// LoadConfig reads configuration from environment variables with optional
// Secrets Manager override.
func LoadConfig() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "5265"),
		Env:  getEnv("ENV", "development"),
		Postgres: database.PostgresConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DB:       os.Getenv("POSTGRES_DB"),
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		InventoryURL:     getEnv("INVENTORY_WS_URL", "ws://127.0.0.1:8080/inventory-socket"),
		HubPath:          getEnv("HUB_PATH", "/ws/"),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		SalesEventsTopic: getEnv("SALES_EVENTS_TOPIC", "sales.events"),
		SalesSNSTopicARN: os.Getenv("SALES_SNS_TOPIC_ARN"),
	}

	var err error
	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"INVENTORY_RECONNECT_BASE", "1s", &cfg.InventoryReconnectBase},
		{"INVENTORY_RECONNECT_MAX", "30s", &cfg.InventoryReconnectMax},
		{"INVENTORY_REPLY_TIMEOUT", "0s", &cfg.InventoryReplyTimeout},
		{"HUB_WRITE_TIMEOUT", "5s", &cfg.HubWriteTimeout},
		{"REQUEST_TIMEOUT", "30s", &cfg.RequestTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getEnv(d.key, d.fallback)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}
	if cfg.InventoryEchoesCorrelate, err = strconv.ParseBool(getEnv("INVENTORY_ECHOES_CORRELATION_ID", "false")); err != nil {
		return nil, fmt.Errorf("invalid INVENTORY_ECHOES_CORRELATION_ID: %w", err)
	}
	if cfg.HubSendBuffer, err = strconv.Atoi(getEnv("HUB_SEND_BUFFER", "64")); err != nil {
		return nil, fmt.Errorf("invalid HUB_SEND_BUFFER: %w", err)
	}

	// Override DB credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			applyDBSecrets(context.Background(), cfg, awspkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type secretMapGetter interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// applyDBSecrets overrides non-empty values from sales/DB_CREDENTIALS.
func applyDBSecrets(ctx context.Context, cfg *Config, sm secretMapGetter) {
	m, err := sm.GetSecretMap(ctx, "sales/DB_CREDENTIALS")
	if err != nil {
		return
	}
	targets := map[string]*string{
		"POSTGRES_USER":     &cfg.Postgres.User,
		"POSTGRES_PASSWORD": &cfg.Postgres.Password,
		"POSTGRES_DB":       &cfg.Postgres.DB,
		"POSTGRES_HOST":     &cfg.Postgres.Host,
		"POSTGRES_PORT":     &cfg.Postgres.Port,
	}
	for key, dst := range targets {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
}

func (c *Config) validate() error {
	if c.Postgres.User == "" || c.Postgres.Password == "" || c.Postgres.DB == "" || c.Postgres.Host == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.InventoryURL == "" {
		return fmt.Errorf("INVENTORY_WS_URL is required")
	}
	if c.InventoryReconnectBase <= 0 {
		return fmt.Errorf("INVENTORY_RECONNECT_BASE must be positive")
	}
	if c.InventoryReconnectMax < c.InventoryReconnectBase {
		return fmt.Errorf("INVENTORY_RECONNECT_MAX must not be below INVENTORY_RECONNECT_BASE")
	}
	if c.InventoryReplyTimeout < 0 {
		return fmt.Errorf("INVENTORY_REPLY_TIMEOUT must not be negative")
	}
	if !strings.HasPrefix(c.HubPath, "/") {
		return fmt.Errorf("HUB_PATH must start with /")
	}
	if c.HubSendBuffer <= 0 {
		return fmt.Errorf("HUB_SEND_BUFFER must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
