package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
alpaca:
  api_key: key
  api_secret: secret
postgres:
  dsn: postgres://localhost/rotator
`

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 15*time.Second, c.Alpaca.Timeout)
	assert.Len(t, c.Strategy.Universe, 19)
	assert.Equal(t, "SPY", c.Strategy.Benchmark)
	assert.Equal(t, "BIL", c.Strategy.SafeAsset)
	assert.Equal(t, "UUP", c.Strategy.DefensiveAsset)
	assert.Equal(t, []string{"SOXL", "TECL", "TQQQ", "FAS", "ERX", "LABU"}, c.Strategy.Leveraged)
	assert.Equal(t, 3, c.Strategy.MaxPositions)
	assert.Equal(t, 0.60, c.Strategy.TargetVolatility)
	assert.Equal(t, 0.10, c.Strategy.Deadband)
	assert.Equal(t, 63, c.Strategy.Periods.RocSlow)
	assert.Equal(t, 200, c.Strategy.Periods.BenchmarkSMA)
	assert.Equal(t, 0.40, c.Strategy.Weights.Fast)
	assert.Equal(t, 0.6, c.Strategy.TrendFactors.BelowSMA)
	assert.True(t, c.Schedule.Enabled)
	assert.Equal(t, "0 10 * * 1", c.Schedule.Cron)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
	assert.Equal(t, "SPY", c.Symbols()[len(c.Symbols())-1])
}

func TestLoadExplicitFalseWins(t *testing.T) {
	c, err := Load(writeConfig(t, minimal+`
schedule:
  enabled: false
metrics:
  enabled: false
`))
	require.NoError(t, err)
	assert.False(t, c.Schedule.Enabled)
	assert.False(t, c.Metrics.Enabled)
	assert.Equal(t, "America/New_York", c.Schedule.Timezone)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("PG_DSN", "postgres://env/rotator")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("UNIVERSE", "aaa, bil,uup")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c, err := LoadWithEnv(writeConfig(t, minimal+`
strategy:
  leveraged: []
`))
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.Alpaca.APIKey)
	assert.Equal(t, "postgres://env/rotator", c.Postgres.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, []string{"AAA", "BIL", "UUP"}, c.Strategy.Universe)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{"safe asset outside universe", "strategy:\n  universe: [AAA, UUP]\n  leveraged: []\n", "safe_asset"},
		{"defensive outside universe", "strategy:\n  universe: [AAA, BIL]\n  leveraged: []\n", "defensive_asset"},
		{"leveraged outside universe", "strategy:\n  universe: [AAA, BIL, UUP]\n  leveraged: [SOXL]\n", "leveraged"},
		{"bad timezone", "schedule:\n  timezone: Mars/Olympus\n", "timezone"},
		{"kafka without brokers", "kafka:\n  enabled: true\n", "kafka.brokers"},
		{"bad log level", "log:\n  level: loud\n", "Level"},
		{"leveraged cap above one", "strategy:\n  leveraged_cap: 1.5\n", "LeveragedCap"},
		{"lock ttl shorter than a run", "redis:\n  enabled: true\n  lock_ttl: 5m\n", "redis.lock_ttl"},
		{"lock ttl equal to run timeout", "redis:\n  enabled: true\n  lock_ttl: 10m\nschedule:\n  run_timeout: 10m\n", "redis.lock_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, minimal+tt.extra))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLockTTLIgnoredWithoutRedis(t *testing.T) {
	c, err := Load(writeConfig(t, minimal+"redis:\n  lock_ttl: 1m\n"))
	require.NoError(t, err)
	assert.False(t, c.Redis.Enabled)
}

func TestLoadRequiresCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: test\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")
}
