package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 1500*time.Millisecond, cfg.AutosaveDebounce)
	assert.Equal(t, 500*time.Millisecond, cfg.MinSnapshotInterval)
	assert.Equal(t, 12*time.Hour, cfg.JoinTokenTTL)
	assert.True(t, cfg.AutosaveDefault)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("AUTOSAVE_DEBOUNCE", "2s")
	t.Setenv("MIN_SNAPSHOT_INTERVAL", "250")
	t.Setenv("AUTOSAVE_DEFAULT", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 2*time.Second, cfg.AutosaveDebounce)
	assert.Equal(t, 250*time.Millisecond, cfg.MinSnapshotInterval, "bare values parse as milliseconds")
	assert.False(t, cfg.AutosaveDefault)
}

func TestLoadConfigRejectsBadEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "sandbox")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateProduction(t *testing.T) {
	base := func() *Config {
		return &Config{
			ServerAddress: ":8080",
			Environment:   "production",
			DynamoDBTable: "mindmesh-documents",
			JWTSecret:     "secret",
			LogLevel:      "info",
		}
	}

	assert.NoError(t, base().Validate())

	missingSecret := base()
	missingSecret.JWTSecret = ""
	assert.Error(t, missingSecret.Validate())

	missingTable := base()
	missingTable.DynamoDBTable = ""
	assert.Error(t, missingTable.Validate())
}
