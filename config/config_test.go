package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("billing defaults", func(t *testing.T) {
		assert.Equal(t, "1.1", cfg.Billing.DefaultMultiplier)
		assert.Equal(t, int64(500), cfg.Billing.EstimatePromptTokens)
		assert.Equal(t, int64(1500), cfg.Billing.EstimateCompletionTokens)
	})
	t.Run("history defaults", func(t *testing.T) {
		assert.Equal(t, 5, cfg.History.PageSize)
		assert.Equal(t, 50, cfg.History.PreviewLength)
	})
	t.Run("admin defaults", func(t *testing.T) {
		assert.Empty(t, cfg.Admin.Identities)
		assert.Equal(t, 300, cfg.Admin.ConfirmationTTL)
	})
	t.Run("valid as shipped", func(t *testing.T) {
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad storage", func(c *Config) { c.Storage.Type = "jsonl" }, "storage.type"},
		{"bad multiplier", func(c *Config) { c.Billing.DefaultMultiplier = "abc" }, "default_multiplier"},
		{"zero multiplier", func(c *Config) { c.Billing.DefaultMultiplier = "0" }, "default_multiplier"},
		{"no workers", func(c *Config) { c.Billing.Workers = 0 }, "billing.workers"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }, "telegram.token"},
		{"reward without amount", func(c *Config) {
			c.Reward.Enabled = true
			c.Reward.Amount = "-1"
		}, "reward.amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, v, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Billing, cfg.Billing)
		assert.Equal(t, 5, v.GetInt("history.page_size"))
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := `
storage:
  type: memory
admin:
  identities: ["100", "200"]
billing:
  default_multiplier: "1.5"
`
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

		cfg, v, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Storage.Type)
		assert.Equal(t, []string{"100", "200"}, cfg.Admin.Identities)
		assert.Equal(t, "1.5", cfg.Billing.DefaultMultiplier)
		assert.Equal(t, 1500, v.GetInt("billing.estimate_completion_tokens"))
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("CHATLEDGER_GATEWAY_API_KEY", "secret")
		t.Setenv("CHATLEDGER_HISTORY_PAGE_SIZE", "7")

		cfg, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "secret", cfg.Gateway.APIKey)
		assert.Equal(t, 7, cfg.History.PageSize)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("billing:\n  workers: 0\n"), 0644))

		_, _, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Admin.Identities = []string{"42"}
	cfg.Reward.Enabled = true

	require.NoError(t, cfg.SaveConfig(path))

	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, loaded.Admin.Identities)
	assert.True(t, loaded.Reward.Enabled)
}

func TestLoggerOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.File = "/tmp/x.log"
	opts := cfg.LoggerOptions()
	assert.Equal(t, "/tmp/x.log", opts.File)
	assert.Equal(t, "info", opts.Level)
}
