package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, "chunksync", cfg.Postgres.Database)
	assert.Equal(t, 4, cfg.Consistency.VectorConcurrency)
	assert.Equal(t, 24*time.Hour, cfg.Consistency.JournalRetention)
	assert.Equal(t, "chunk-store-requests", cfg.Kafka.Topics.ChunkStore)
	assert.Equal(t, "chunk-reprocess", cfg.Kafka.Topics.Reprocess)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.False(t, cfg.Consistency.DistributedLocks)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9000
consistency:
  vectorConcurrency: 8
  lockTimeout: 10s
  journalRetention: 48h
  distributedLocks: true
redis:
  addr: redis.internal:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Consistency.VectorConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Consistency.LockTimeout)
	assert.Equal(t, 48*time.Hour, cfg.Consistency.JournalRetention)
	assert.True(t, cfg.Consistency.DistributedLocks)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", cfg.Postgres.Host)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CS_POSTGRES_HOST", "pg.internal")
	t.Setenv("CS_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CS_OPENAI_API_KEY", "sk-test")
	t.Setenv("CS_WORKER_ID", "9")
	t.Setenv("CS_DATACENTER_ID", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "pg.internal", cfg.Postgres.Host)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, int64(9), cfg.Consistency.WorkerID)
	assert.Equal(t, int64(3), cfg.Consistency.DatacenterID)
}

func TestValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero vector concurrency", "consistency:\n  vectorConcurrency: 0\n"},
		{"excessive vector concurrency", "consistency:\n  vectorConcurrency: 64\n"},
		{"negative journal retention", "consistency:\n  journalRetention: -1h\n"},
		{"datacenter id out of range", "consistency:\n  datacenterId: 40\n"},
		{"worker id out of range", "consistency:\n  workerId: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}
