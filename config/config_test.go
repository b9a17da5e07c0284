package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "TX_MAX_RETRIES", "TX_BACKOFF_MS", "CACHE_TTL_SECONDS", "KAFKA_BROKERS", "KAFKA_NOTIFY_QUEUE_SIZE", "DB_MEMORY_TRANSACTIONS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Transactions.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Transactions.BackoffUnit)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 1024, cfg.Kafka.NotifyQueueSize)
	assert.False(t, cfg.Database.MemoryTransactions)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", DriverMemory)
	t.Setenv("TX_MAX_RETRIES", "5")
	t.Setenv("TX_BACKOFF_MS", "20")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("NOTIFICATIONS_ENABLED", "false")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("KAFKA_NOTIFY_QUEUE_SIZE", "64")
	t.Setenv("DB_MEMORY_TRANSACTIONS", "true")

	cfg := Load()

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Transactions.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.Transactions.BackoffUnit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 64, cfg.Kafka.NotifyQueueSize)
	assert.True(t, cfg.Database.MemoryTransactions)
}
