package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: memory\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 200, cfg.Ingestion.BatchSize)
	assert.Equal(t, 900*time.Millisecond, cfg.Ingestion.Throttle)
	assert.Equal(t, 8, cfg.Ingestion.Retry.MaxRetries)
	assert.Equal(t, "reinteradas", cfg.Firestore.RecordsCollection)
	assert.Equal(t, "reiteradas:uploads:", cfg.Redis.Prefix)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: mongodb
mongodb:
  uri: mongodb://db:27017
  transactions: false
ingestion:
  throttle: 1s
  retry:
    max_retries: 3
auth:
  admin_emails:
    - ops@example.com
`)
	t.Setenv("REITERADAS_INGESTION_BATCH_SIZE", "100")
	t.Setenv("REITERADAS_REDIS_ENABLED", "true")
	t.Setenv("REITERADAS_REDIS_ADDRESS", "cache:6379")
	t.Setenv("REITERADAS_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMongoDB, cfg.Store.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.MongoDB.URI)
	assert.False(t, cfg.MongoDB.Transactions)
	assert.Equal(t, time.Second, cfg.Ingestion.Throttle)
	assert.Equal(t, 3, cfg.Ingestion.Retry.MaxRetries)
	assert.Equal(t, 100, cfg.Ingestion.BatchSize)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Address)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Auth.AdminEmails)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "store:\n  driver: sqlite\n"))
	assert.ErrorContains(t, err, "unknown store driver")

	_, err = Load(writeConfig(t, "store:\n  driver: memory\ningestion:\n  batch_size: 600\n"))
	assert.ErrorContains(t, err, "must not exceed 500")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateFirestoreNeedsProject(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = DriverFirestore
	assert.Error(t, cfg.Validate())
	cfg.Firestore.ProjectID = "reiteradas"
	assert.NoError(t, cfg.Validate())
}
