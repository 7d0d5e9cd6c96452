package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	HTTPPort string
	GRPCPort string
	LogLevel string
	Storage  string

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	MigrationsPath string

	MongoURI string
	MongoDB  string

	RedisAddr  string
	SessionTTL time.Duration

	CatalogDBPath         string
	CatalogMigrationsPath string

	KafkaBrokers            []string
	KafkaNotificationsTopic string
	KafkaOrderEventsTopic   string

	CoinRate               decimal.Decimal
	CoinRedemptionUnit     int64
	MaxCoinsPerTransaction int64
	MinProofCodeLength     int

	StorePhone       string
	PhoneCountryCode string
	AdminToken       string

	RequestTimeout time.Duration
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50060"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Storage:  getEnv("STORAGE", StoragePostgres),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "loyalty"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "loyalty"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),

		KafkaNotificationsTopic: getEnv("KAFKA_NOTIFICATIONS_TOPIC", "notifications"),
		KafkaOrderEventsTopic:   getEnv("KAFKA_ORDER_EVENTS_TOPIC", "order-events"),

		StorePhone:       getEnv("STORE_PHONE", "212660094154"),
		PhoneCountryCode: getEnv("PHONE_COUNTRY_CODE", "212"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
	}

	if cfg.Storage != StoragePostgres && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("invalid STORAGE %q: want %s or %s", cfg.Storage, StoragePostgres, StorageMemory)
	}

	var err error
	if cfg.DBPort, err = strconv.Atoi(getEnv("DB_PORT", "5432")); err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	if cfg.SessionTTL, err = time.ParseDuration(getEnv("SESSION_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	if cfg.RequestTimeout, err = time.ParseDuration(getEnv("REQUEST_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	if cfg.CoinRate, err = decimal.NewFromString(getEnv("COIN_RATE", "0.1")); err != nil {
		return nil, fmt.Errorf("invalid COIN_RATE: %w", err)
	}
	if !cfg.CoinRate.IsPositive() {
		return nil, fmt.Errorf("invalid COIN_RATE: must be positive")
	}
	if cfg.CoinRedemptionUnit, err = positiveInt(getEnv("COIN_REDEMPTION_UNIT", "10")); err != nil {
		return nil, fmt.Errorf("invalid COIN_REDEMPTION_UNIT: %w", err)
	}
	if cfg.MaxCoinsPerTransaction, err = positiveInt(getEnv("MAX_COINS_PER_TRANSACTION", "5000")); err != nil {
		return nil, fmt.Errorf("invalid MAX_COINS_PER_TRANSACTION: %w", err)
	}
	minCode, err := positiveInt(getEnv("MIN_PROOF_CODE_LENGTH", "6"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_PROOF_CODE_LENGTH: %w", err)
	}
	cfg.MinProofCodeLength = int(minCode)

	// An explicitly empty KAFKA_BROKERS disables Kafka.
	brokers, ok := os.LookupEnv("KAFKA_BROKERS")
	if !ok {
		brokers = "localhost:9092"
	}
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	return cfg, nil
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func positiveInt(raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", v)
	}
	return v, nil
}
