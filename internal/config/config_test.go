package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "maklermate_leads", cfg.Storage.LeadsKey)
	assert.Equal(t, "maklermate_exposes", cfg.Storage.ExposesKey)
	assert.Equal(t, int64(5*1024*1024), cfg.Storage.QuotaBytes)
	assert.Equal(t, 150, cfg.Persistence.DebounceMs)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, int64(1000), cfg.Retry.InitialDelay().Milliseconds())
	assert.Equal(t, int64(10000), cfg.Retry.MaxDelay().Milliseconds())
	assert.InDelta(t, 2.0, cfg.Retry.BackoffFactor, 0.0001)
	assert.False(t, cfg.Auth.Required)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "indexeddb" },
			wantErr: "unknown storage backend",
		},
		{
			name:    "auth required without secret",
			mutate:  func(c *Config) { c.Auth.Required = true },
			wantErr: "auth.jwtSecret",
		},
		{
			name: "backup with unknown mode",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
				c.Backup.Mode = "s3"
			},
			wantErr: "unknown backup mode",
		},
		{
			name: "unknown backup mode ignored while disabled",
			mutate: func(c *Config) {
				c.Backup.Mode = "s3"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			cfg, err := unmarshal(v)
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecretFallbacks(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", "top-secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg, err := unmarshal(v)
	require.NoError(t, err)
	assert.Equal(t, "top-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "sk-test", cfg.TextGen.APIKey)
}
