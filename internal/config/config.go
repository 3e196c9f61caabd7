package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	JWTPublicKey string
	HTTPAddr     string
	OTLPEndpoint string
	LogLevel     string

	PendingTTL        time.Duration
	SweepInterval     time.Duration
	SweepBatch        int
	CommitRetries     int
	StrictAmountCheck bool
	Currency          string
	IdempotencyTTL    time.Duration
	NotifyBuffer      int

	GatewayURL      string
	GatewayClientID string
	GatewaySecret   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		JWTPublicKey: os.Getenv("JWT_PUBLIC_KEY"),
		HTTPAddr:     envString("HTTP_ADDR", ":8080"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:     envString("LOG_LEVEL", "info"),

		PendingTTL:        envDuration("PENDING_TTL", 15*time.Minute),
		SweepInterval:     envDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatch:        envInt("SWEEP_BATCH", 100),
		CommitRetries:     envInt("COMMIT_RETRIES", 3),
		StrictAmountCheck: envBool("STRICT_AMOUNT_CHECK", false),
		Currency:          envString("CURRENCY", "usd"),
		IdempotencyTTL:    envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		NotifyBuffer:      envInt("NOTIFY_BUFFER", 256),

		GatewayURL:      os.Getenv("GATEWAY_URL"),
		GatewayClientID: os.Getenv("GATEWAY_CLIENT_ID"),
		GatewaySecret:   os.Getenv("GATEWAY_SECRET"),
	}, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}
