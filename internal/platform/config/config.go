// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a safe development default.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	Addr     string
	JWT      JWTConfig
	Provider ProviderConfig
	Polling  PollingConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// JWTConfig controls session token signing.
type JWTConfig struct {
	SigningKey    string
	Issuer        string
	Audience      string
	AccessExpiry  string // duration string, e.g. "24h"
	RefreshExpiry string // duration string, e.g. "30d"
}

// ProviderConfig describes the external biometric verification provider.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	// PropagationWindow is how long after operation creation a provider
	// 404 is treated as sync lag rather than a real not-found.
	PropagationWindow time.Duration
	RequestTimeout    time.Duration
}

// PollingConfig bounds every status polling session.
type PollingConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// RedisConfig configures the optional Redis operation registry backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional Postgres enrollment store backend.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// KafkaConfig configures the optional audit event publisher.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Config from VERIGATE_* environment variables.
func FromEnv() Config {
	return Config{
		Addr: getEnv("VERIGATE_ADDR", ":8080"),
		JWT: JWTConfig{
			// Development default only; must be overridden in production.
			SigningKey:    getEnv("VERIGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        getEnv("VERIGATE_JWT_ISSUER", "verigate"),
			Audience:      getEnv("VERIGATE_JWT_AUDIENCE", "verigate-clients"),
			AccessExpiry:  getEnv("VERIGATE_JWT_ACCESS_EXPIRY", "24h"),
			RefreshExpiry: getEnv("VERIGATE_JWT_REFRESH_EXPIRY", "30d"),
		},
		Provider: ProviderConfig{
			BaseURL:           getEnv("VERIGATE_PROVIDER_URL", "http://localhost:9090"),
			APIKey:            os.Getenv("VERIGATE_PROVIDER_API_KEY"),
			PropagationWindow: getDuration("VERIGATE_PROVIDER_PROPAGATION_WINDOW", 30*time.Second),
			RequestTimeout:    getDuration("VERIGATE_PROVIDER_TIMEOUT", 10*time.Second),
		},
		Polling: PollingConfig{
			MaxAttempts: getInt("VERIGATE_POLL_MAX_ATTEMPTS", 60),
			Interval:    getDuration("VERIGATE_POLL_INTERVAL", 2*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("VERIGATE_REDIS_URL"),
			PoolSize:     getInt("VERIGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("VERIGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("VERIGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("VERIGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("VERIGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:          os.Getenv("VERIGATE_POSTGRES_DSN"),
			MaxOpenConns: getInt("VERIGATE_POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getInt("VERIGATE_POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Kafka: KafkaConfig{
			Brokers:    splitNonEmpty(os.Getenv("VERIGATE_KAFKA_BROKERS")),
			AuditTopic: getEnv("VERIGATE_KAFKA_AUDIT_TOPIC", "verigate.audit"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
