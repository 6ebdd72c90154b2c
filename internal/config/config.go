package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters; nothing reads the
// environment after startup.
type Config struct {
	Port string
	Env  string

	DB          DatabaseConfig
	Redis       RedisConfig
	Queue       QueueConfig
	Worker      WorkerConfig
	Webhook     WebhookConfig
	Idempotency IdempotencyConfig
	Settlement  SettlementConfig
	TestSeed    TestSeedConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// QueueConfig contains work queue tuning parameters.
type QueueConfig struct {
	Name         string
	PollInterval time.Duration
	MaxAttempts  int
}

// WorkerConfig contains pool sizing and scheduler intervals.
type WorkerConfig struct {
	PoolSize          int
	SchedulerInterval time.Duration
}

// WebhookConfig contains delivery policy for outgoing webhooks.
// RetrySchedule is an explicit ordered sequence of delays indexed by the
// attempt number that just failed; its length bounds total attempts.
type WebhookConfig struct {
	MaxAttempts   int
	Timeout       time.Duration
	RetrySchedule []time.Duration
}

// IdempotencyConfig contains idempotency record parameters.
type IdempotencyConfig struct {
	TTL time.Duration
}

// SettlementConfig contains mock settlement tuning.
type SettlementConfig struct {
	ProcessingDelay time.Duration
	RefundDelay     time.Duration
}

// TestSeedConfig contains the seeded test merchant credentials.
type TestSeedConfig struct {
	Email         string
	APIKey        string
	APISecret     string
	WebhookSecret string
}

// DefaultRetrySchedule is the production webhook backoff sequence.
var DefaultRetrySchedule = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

// FastRetrySchedule compresses the backoff sequence for test and validation
// runs; attempt count and signing are unchanged.
var FastRetrySchedule = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1600 * time.Millisecond,
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Load .env if present; ignore error if file is missing so that production
	// environments relying solely on real environment variables keep working.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Queue
	cfg.Queue = QueueConfig{
		Name:        getEnv("QUEUE_NAME", "gateway_jobs"),
		MaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
	}

	// Webhook delivery
	cfg.Webhook = WebhookConfig{
		MaxAttempts:   getEnvInt("WEBHOOK_MAX_ATTEMPTS", 5),
		RetrySchedule: DefaultRetrySchedule,
	}
	if getEnvBool("WEBHOOK_RETRY_FAST", false) {
		cfg.Webhook.RetrySchedule = FastRetrySchedule
	}

	// Test seed merchant
	cfg.TestSeed = TestSeedConfig{
		Email:         getEnv("TEST_MERCHANT_EMAIL", "test@example.com"),
		APIKey:        getEnv("TEST_API_KEY", "key_test_abc123"),
		APISecret:     getEnv("TEST_API_SECRET", "secret_test_xyz789"),
		WebhookSecret: getEnv("TEST_WEBHOOK_SECRET", "whsec_test_abc123"),
	}

	// Workers and intervals (durations)
	var err error
	if cfg.Queue.PollInterval, err = parseDurationEnv("QUEUE_POLL_INTERVAL", "250ms"); err != nil {
		return nil, fmt.Errorf("invalid QUEUE_POLL_INTERVAL: %w", err)
	}
	if cfg.Worker.SchedulerInterval, err = parseDurationEnv("SCHEDULER_INTERVAL", "500ms"); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_INTERVAL: %w", err)
	}
	if cfg.Webhook.Timeout, err = parseDurationEnv("WEBHOOK_TIMEOUT", "5s"); err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}
	if cfg.Idempotency.TTL, err = parseDurationEnv("IDEMPOTENCY_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
	}
	if cfg.Settlement.ProcessingDelay, err = parseDurationEnv("SETTLEMENT_DELAY", "2s"); err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_DELAY: %w", err)
	}
	if cfg.Settlement.RefundDelay, err = parseDurationEnv("REFUND_DELAY", "1s"); err != nil {
		return nil, fmt.Errorf("invalid REFUND_DELAY: %w", err)
	}
	cfg.Worker.PoolSize = getEnvInt("WORKER_POOL_SIZE", 4)

	// Basic validation — keeps messages concise and helpful.
	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return nil, errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}
	if cfg.Worker.PoolSize < 1 {
		return nil, errors.New("WORKER_POOL_SIZE must be at least 1")
	}
	if cfg.Webhook.MaxAttempts < 1 || cfg.Webhook.MaxAttempts > len(cfg.Webhook.RetrySchedule) {
		return nil, fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be between 1 and %d", len(cfg.Webhook.RetrySchedule))
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// getEnvBool returns the value of an environment variable as a boolean or a default if empty.
func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
