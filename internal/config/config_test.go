package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWithNoConfigFilePresent(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "./workspace", cfg.Kernel.WorkspaceRoot)
	assert.Equal(t, "balanced_v1", cfg.Kernel.LeakGateMode)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestDatabaseConfig_DSNFormatsConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "orket",
		Password: "secret",
		Database: "orket",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db.internal port=5432 user=orket password=secret dbname=orket sslmode=disable", cfg.DSN())
}

func TestRedisConfig_AddrFormatsHostPort(t *testing.T) {
	cfg := RedisConfig{Host: "redis.internal", Port: 6380}
	assert.Equal(t, "redis.internal:6380", cfg.Addr())
}
