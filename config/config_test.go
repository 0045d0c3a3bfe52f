package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENPARCEL_SERVER_PORT", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 100, cfg.Auth.SuperuserAccessLevel)
	assert.Equal(t, 30*time.Second, cfg.Scraper.DefaultTimeout)
	assert.Equal(t, 10, cfg.Pool.MaxConcurrent)
}

func TestLoadRespectsEnvOverride(t *testing.T) {
	t.Setenv("OPENPARCEL_SERVER_PORT", "9090")
	t.Setenv("OPENPARCEL_POOL_MAX_CONCURRENT", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Pool.MaxConcurrent)
}
