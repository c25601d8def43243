// Package config loads service configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Source kinds accepted by SOURCE_KIND.
const (
	SourceWS    = "ws"
	SourceRedis = "redis"
	SourceKafka = "kafka"
)

// Config holds all service configuration.
type Config struct {
	// Server
	ListenAddr string

	// Upstream source selection
	SourceKind string // ws | redis | kafka

	// WebSocket feed
	FeedURL   string
	FeedMints []string // empty means wildcard

	// Redis pub/sub feed
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// Kafka feed
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	// Pipeline tuning
	ClientQueueSize      int
	StoreCapacity        int
	DedupWindow          int
	ReconnectMaxAttempts int
}

// Load reads configuration from environment variables, first loading a
// .env file if one is present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env file")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		SourceKind: getEnv("SOURCE_KIND", SourceWS),

		FeedURL:   getEnv("FEED_URL", "ws://localhost:6969/ws"),
		FeedMints: getEnvList("FEED_MINTS", nil),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisChannel:  getEnv("REDIS_CHANNEL", "price_updates"),

		KafkaBrokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "price-updates"),
		KafkaGroup:   getEnv("KAFKA_GROUP", "token-pulse"),

		ClientQueueSize:      getEnvInt("CLIENT_QUEUE_SIZE", 256),
		StoreCapacity:        getEnvInt("STORE_CAPACITY", 10000),
		DedupWindow:          getEnvInt("DEDUP_WINDOW", 8192),
		ReconnectMaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[config] %s=%q is not an integer, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
