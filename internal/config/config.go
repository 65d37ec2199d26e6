package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderCancelled      string
	ReservationReleased string
	StockChanged        string
}

// EngineConfig holds the timing knobs of the reconciliation and cleanup
// loops and the cart/reservation TTL policy.
type EngineConfig struct {
	ReconcileInterval time.Duration
	PaymentTimeout    time.Duration
	CartLockTimeout   time.Duration

	CleanupInterval  time.Duration
	GuestCartTTL     time.Duration
	UserCartTTL      time.Duration
	ExpiredCartGrace time.Duration

	ReservationWindow time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "keyshop_user"),
			Password:     getEnv("DB_PASSWORD", "keyshop_pass"),
			Database:     getEnv("DB_NAME", "keyshop"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderCancelled:      getEnv("KAFKA_TOPIC_ORDER_CANCELLED", "order-cancelled"),
				ReservationReleased: getEnv("KAFKA_TOPIC_RESERVATION_RELEASED", "reservation-released"),
				StockChanged:        getEnv("KAFKA_TOPIC_STOCK_CHANGED", "stock-changed"),
			},
		},
		Engine: EngineConfig{
			ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Minute),
			PaymentTimeout:    getEnvDuration("PAYMENT_TIMEOUT", 5*time.Minute),
			CartLockTimeout:   getEnvDuration("CART_LOCK_TIMEOUT", 5*time.Minute),
			CleanupInterval:   getEnvDuration("CART_CLEANUP_INTERVAL", 24*time.Hour),
			GuestCartTTL:      getEnvDuration("GUEST_CART_TTL", 7*24*time.Hour),
			UserCartTTL:       getEnvDuration("USER_CART_TTL", 30*24*time.Hour),
			ExpiredCartGrace:  getEnvDuration("EXPIRED_CART_GRACE", 24*time.Hour),
			ReservationWindow: getEnvDuration("RESERVATION_WINDOW", 5*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
