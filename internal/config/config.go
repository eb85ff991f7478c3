package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort int

	StorageDriver string // "postgres" or "memory"

	DBConfig struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	MigrationsPath string

	KafkaBrokerURL        string
	KafkaOrderStatusTopic string

	OutboxPollInterval  time.Duration
	OutboxPollTimeout   time.Duration
	LedgerRetryInterval time.Duration

	AlphaPay struct {
		BaseURL       string
		APIKey        string
		WebhookSecret string
		Timeout       time.Duration
	}
	BravoPay struct {
		BaseURL    string
		MerchantID string
		Secret     string
		Timeout    time.Duration
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPPort = getEnvAsInt("PAYGATE_HTTP_PORT", 8080)
	cfg.StorageDriver = getEnvOrDefault("PAYGATE_STORAGE_DRIVER", "postgres")
	if cfg.StorageDriver != "postgres" && cfg.StorageDriver != "memory" {
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	cfg.DBConfig.Host = getEnvOrDefault("PAYGATE_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("PAYGATE_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("PAYGATE_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("PAYGATE_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("PAYGATE_DB_NAME", "paygate_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("PAYGATE_DB_SSLMODE", "disable")
	cfg.MigrationsPath = getEnvOrDefault("PAYGATE_MIGRATIONS_PATH", "file://migrations")

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaOrderStatusTopic = getEnvOrDefault("KAFKA_ORDER_STATUS_TOPIC", "order_status_events")

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)
	cfg.LedgerRetryInterval = getEnvAsDuration("LEDGER_RETRY_INTERVAL", 5*time.Second)

	cfg.AlphaPay.BaseURL = getEnvOrDefault("ALPHAPAY_BASE_URL", "https://sandbox.alphapay.example")
	cfg.AlphaPay.APIKey = getEnvOrDefault("ALPHAPAY_API_KEY", "")
	cfg.AlphaPay.WebhookSecret = getEnvOrDefault("ALPHAPAY_WEBHOOK_SECRET", "")
	cfg.AlphaPay.Timeout = getEnvAsDuration("ALPHAPAY_TIMEOUT", 10*time.Second)

	cfg.BravoPay.BaseURL = getEnvOrDefault("BRAVOPAY_BASE_URL", "https://sandbox.bravopay.example")
	cfg.BravoPay.MerchantID = getEnvOrDefault("BRAVOPAY_MERCHANT_ID", "")
	cfg.BravoPay.Secret = getEnvOrDefault("BRAVOPAY_SECRET", "")
	cfg.BravoPay.Timeout = getEnvAsDuration("BRAVOPAY_TIMEOUT", 10*time.Second)

	return cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
