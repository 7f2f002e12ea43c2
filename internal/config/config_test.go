package config

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  instance_id: "test-node"
  environment: "development"
  log_level: "debug"

screener:
  refresh_interval_sec: 60
  max_concurrent_requests: 4
  min_buys_per_minute: 40
  min_volume_1h_sol: 3500

bitquery:
  api_key: "bq-test-key"

bus:
  enabled: true
  brokers:
    - "localhost:19092"
  schema_version: "1.0.0"

alerts:
  enabled: true
  discord_webhook: "https://discord.com/api/webhooks/test"
`
	tmpFile, err := os.CreateTemp("", "pulse-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.Equal(t, "development", cfg.General.Environment)
	assert.Equal(t, 60, cfg.Screener.RefreshIntervalSec)
	assert.Equal(t, 4, cfg.Screener.MaxConcurrentRequests)
	assert.Equal(t, 40, cfg.Screener.MinBuysPerMinute)
	assert.Equal(t, 3500.0, cfg.Screener.MinVolume1hSOL)
	assert.Equal(t, "bq-test-key", cfg.Bitquery.APIKey)
	assert.Equal(t, []string{"localhost:19092"}, cfg.Bus.Brokers)
	assert.True(t, cfg.Alerts.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	yaml := `
general:
  log_level: "info"
`
	tmpFile, err := os.CreateTemp("", "pulse-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "pulse-1", cfg.General.InstanceID)
	assert.Equal(t, "json", cfg.General.LogFormat)
	assert.Equal(t, 30, cfg.Screener.RefreshIntervalSec)
	assert.Equal(t, 10, cfg.Screener.MaxConcurrentRequests)
	assert.Equal(t, 30, cfg.Screener.RequestTimeoutSec)
	assert.Equal(t, 0, cfg.Screener.CycleDeadlineSec)
	assert.Equal(t, 25, cfg.Screener.MinBuysPerMinute)
	assert.Equal(t, 2000.0, cfg.Screener.MinVolume1hSOL)
	assert.Equal(t, 50, cfg.Screener.CandidateLimit)
	assert.Equal(t, 3.0, cfg.Screener.MinCompositeScore)
	assert.Equal(t, 0.7, cfg.Screener.MaxRiskScore)
	assert.Equal(t, 1000.0, cfg.Screener.MinResultVolumeSOL)
	assert.Equal(t, "https://streaming.bitquery.io/graphql", cfg.Bitquery.Endpoint)
	assert.Equal(t, 5.0, cfg.Bitquery.RateLimitRPS)
	assert.Equal(t, "https://pump.fun/api", cfg.Launchpad.BaseURL)
	assert.Equal(t, 300, cfg.Cache.TTLSec)
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Bus.Brokers)
	assert.Equal(t, 3600, cfg.Alerts.DedupeTTLSec)
	assert.Equal(t, 8880, cfg.HTTP.Port)
}

func TestLoadConfigClampsRefreshInterval(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"below floor", 3, 10},
		{"above ceiling", 900, 300},
		{"in range", 45, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := fmt.Sprintf("screener:\n  refresh_interval_sec: %d\n", tt.in)
			tmpFile, err := os.CreateTemp("", "pulse-config-*.yaml")
			require.NoError(t, err)
			defer os.Remove(tmpFile.Name())

			_, err = tmpFile.WriteString(yaml)
			require.NoError(t, err)
			tmpFile.Close()

			cfg, err := Load(tmpFile.Name())
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Screener.RefreshIntervalSec)
		})
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	os.Setenv("TEST_PULSE_API_KEY", "bq-secret")
	defer os.Unsetenv("TEST_PULSE_API_KEY")

	yaml := `
bitquery:
  api_key: "${TEST_PULSE_API_KEY}"
`
	tmpFile, err := os.CreateTemp("", "pulse-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "bq-secret", cfg.Bitquery.APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/pulse.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults pass", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("rejects negative ceiling", func(t *testing.T) {
		cfg := base()
		cfg.Screener.MaxConcurrentRequests = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects risk above one", func(t *testing.T) {
		cfg := base()
		cfg.Screener.MaxRiskScore = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects composite above ten", func(t *testing.T) {
		cfg := base()
		cfg.Screener.MinCompositeScore = 11
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative cycle deadline", func(t *testing.T) {
		cfg := base()
		cfg.Screener.CycleDeadlineSec = -5
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative result volume floor", func(t *testing.T) {
		cfg := base()
		cfg.Screener.MinResultVolumeSOL = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("alerts need a destination", func(t *testing.T) {
		cfg := base()
		cfg.Alerts.Enabled = true
		assert.Error(t, cfg.Validate())

		cfg.Alerts.DiscordWebhook = "https://discord.com/api/webhooks/x"
		assert.NoError(t, cfg.Validate())
	})
}
