package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "https://api.voicebridge.io/v1", cfg.Voice.BaseURL)
	assert.Equal(t, 120, cfg.Match.WindowMinutes)
	assert.Equal(t, 50, cfg.Match.MinScore)
	assert.Equal(t, 100, cfg.Match.PageSize)
	assert.Equal(t, 250, cfg.Match.DetailDelayMillis)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentLeads)
	assert.Equal(t, 24, cfg.Batch.LookbackHours)
	assert.Equal(t, 5, cfg.Batch.MaxDLQRetries)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.RateLimit)
	assert.Equal(t, 60, cfg.Server.RateWindowSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
  database_url: leadlink.db
match:
  window_minutes: 60
  min_score: 80
log:
  level: debug
  format: console
server:
  port: 9090
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadlink.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 60, cfg.Match.WindowMinutes)
	assert.Equal(t, 80, cfg.Match.MinScore)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Unset values keep their defaults.
	assert.Equal(t, 100, cfg.Match.PageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		mode    string
		wantErr string
	}{
		{
			name:    "link mode requires voice key",
			cfg:     Config{Store: StoreConfig{Driver: "sqlite"}},
			mode:    "link",
			wantErr: "voice.key",
		},
		{
			name:    "postgres requires database url",
			cfg:     Config{Store: StoreConfig{Driver: "postgres"}},
			mode:    "store",
			wantErr: "database_url",
		},
		{
			name:    "unknown driver rejected",
			cfg:     Config{Store: StoreConfig{Driver: "oracle"}},
			mode:    "store",
			wantErr: "unknown store driver",
		},
		{
			name: "valid sqlite link config",
			cfg: Config{
				Store: StoreConfig{Driver: "sqlite", DatabaseURL: "leadlink.db"},
				Voice: VoiceConfig{Key: "vk_test"},
			},
			mode: "link",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	err := InitLogger(LogConfig{Level: "not-a-level"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
