package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, 50, cfg.PersistBatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.PersistFlushTimeout)
	assert.Equal(t, int64(100_000), cfg.SnapshotInterval)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ESTABLO_HTTP_ADDR", ":18080")
	t.Setenv("ESTABLO_PERSIST_BATCH_SIZE", "200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":18080", cfg.HTTPAddr)
	assert.Equal(t, 200, cfg.PersistBatchSize)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.PersistBatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg.PersistBatchSize = 50
	cfg.PostgresURL = ""
	assert.Error(t, cfg.Validate())
}
