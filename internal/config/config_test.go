package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5050, cfg.ControlPort)
	assert.Equal(t, 5051, cfg.GRPCHealthPort)
	assert.Equal(t, 10, cfg.MovingAverageWindowSec)
	assert.Equal(t, 128, cfg.MaxShards)
	assert.Equal(t, 50000, cfg.MaxBatch)
	assert.Equal(t, 1000000, cfg.MaxRate)
	assert.Equal(t, 0, cfg.RepairTTLDays)
	assert.Equal(t, "*", cfg.AllowedOrigin)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("INCIDENTGEN_CONTROL_PORT", "9090")
	t.Setenv("INCIDENTGEN_MAX_SHARDS", "16")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ControlPort)
	assert.Equal(t, 16, cfg.MaxShards)
}

func TestLoadNATSURLDefaultsDisabled(t *testing.T) {
	_ = os.Unsetenv("INCIDENTGEN_NATS_URL")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.NATSURL)
}
