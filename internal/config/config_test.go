package config_test

import (
	"testing"
	"time"

	"github.com/robertarktes/event-ticket-inventory/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PENDING_TTL", "")
	t.Setenv("COMMIT_RETRIES", "not-a-number")
	t.Setenv("STRICT_AMOUNT_CHECK", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 3, cfg.CommitRetries)
	assert.False(t, cfg.StrictAmountCheck)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PENDING_TTL", "90s")
	t.Setenv("SWEEP_BATCH", "7")
	t.Setenv("STRICT_AMOUNT_CHECK", "true")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.PendingTTL)
	assert.Equal(t, 7, cfg.SweepBatch)
	assert.True(t, cfg.StrictAmountCheck)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}
