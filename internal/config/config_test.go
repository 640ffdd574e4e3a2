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

	assert.Equal(t, DefaultRPCURL, cfg.Chain.RPCURL)
	assert.Equal(t, DefaultContractAddress, cfg.Chain.ContractAddress)
	assert.Equal(t, 100, cfg.Chain.RateLimitRPS)
	assert.Equal(t, 3010, cfg.Fanout.Port)
	assert.Equal(t, 3, cfg.Detector.MultiClaimThreshold)
	assert.Equal(t, 60*time.Second, cfg.Detector.WindowSize)
	assert.Equal(t, "Asia/Taipei", cfg.Timezone)
	assert.False(t, cfg.Redis.Enabled(), "redis cache is off unless REDIS_HOST is set")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "25")
	t.Setenv("FANOUT_PORT", "4020")
	t.Setenv("MULTI_CLAIM_THRESHOLD", "5")
	t.Setenv("REDIS_HOST", "cache.internal")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Chain.RateLimitRPS)
	assert.Equal(t, 4020, cfg.Fanout.Port)
	assert.Equal(t, 5, cfg.Detector.MultiClaimThreshold)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache.internal:6379", cfg.Redis.Addr())
}

func TestLoadConfigIgnoresMalformedInts(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Chain.RateLimitRPS)
}

func TestDatabaseConnString(t *testing.T) {
	t.Run("url wins when set", func(t *testing.T) {
		c := DatabaseConfig{DatabaseURL: "postgres://u:p@db:5432/x"}
		assert.Equal(t, "postgres://u:p@db:5432/x", c.ConnString())
		assert.Equal(t, "postgres://u:p@db:5432/x", c.URL())
	})

	t.Run("assembled from parts", func(t *testing.T) {
		c := DatabaseConfig{
			Host: "localhost", Port: "5432", Database: "scanner",
			User: "scanner", Password: "pw", MaxConnections: 10,
		}
		assert.Contains(t, c.ConnString(), "host=localhost")
		assert.Contains(t, c.ConnString(), "pool_max_conns=10")
		assert.Equal(t, "postgres://scanner:pw@localhost:5432/scanner?sslmode=disable", c.URL())
	})
}

func TestRequireDatabase(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	if cfg.Database.Configured() {
		t.Skip("database configured in environment")
	}
	assert.Error(t, cfg.RequireDatabase())

	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.NoError(t, cfg.RequireDatabase())
}
