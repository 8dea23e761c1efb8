package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	require.Equal(t, 3002, cfg.Server.Port)
	require.Equal(t, "localhost", cfg.Server.Host)
	require.Equal(t, 2, cfg.Queue.Concurrency)
	require.Equal(t, 3, cfg.Queue.MaxAttempts)
	require.Equal(t, "30m", cfg.Queue.CooldownWindow)
	require.Equal(t, 1000, cfg.Portal.PageSize)
	require.True(t, cfg.Token.Headless)
	require.False(t, cfg.Scheduler.Enabled)

	require.NoError(t, Validate(cfg))
}

func TestLoadFromFilesOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "praedium.toml")
	content := `
[server]
port = 8090

[queue]
concurrency = 4
cooldown_window = "1h"

[portal]
search_url = "https://esearch.example-cad.org/api/search"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)
	require.Equal(t, 8090, cfg.Server.Port)
	require.Equal(t, 4, cfg.Queue.Concurrency)
	require.Equal(t, "1h", cfg.Queue.CooldownWindow)
	require.Equal(t, "https://esearch.example-cad.org/api/search", cfg.Portal.SearchURL)
	// Untouched sections keep their defaults
	require.Equal(t, "localhost", cfg.Server.Host)
	require.Equal(t, 1000, cfg.Portal.PageSize)
}

func TestLoadFromFilesLaterFileWins(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(base, []byte("[server]\nport = 8000\nhost = \"0.0.0.0\"\n"), 0644))
	require.NoError(t, os.WriteFile(local, []byte("[server]\nport = 9000\n"), 0644))

	cfg, err := LoadFromFiles(base, local)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadFromFilesRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "praedium.toml")
	require.NoError(t, os.WriteFile(path, []byte("[queue]\npoll_interval = \"soon\"\n"), 0644))

	_, err := LoadFromFiles(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "queue.poll_interval")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRAEDIUM_SERVER_PORT", "7777")
	t.Setenv("PRAEDIUM_QUEUE_COOLDOWN_WINDOW", "15m")
	t.Setenv("PRAEDIUM_STATIC_TOKEN", "env-token")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.Server.Port)
	require.Equal(t, "15m", cfg.Queue.CooldownWindow)
	require.Equal(t, "env-token", cfg.Token.StaticToken)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()

	ApplyFlagOverrides(cfg, 0, "")
	require.Equal(t, 3002, cfg.Server.Port)
	require.Equal(t, "localhost", cfg.Server.Host)

	ApplyFlagOverrides(cfg, 4040, "0.0.0.0")
	require.Equal(t, 4040, cfg.Server.Port)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		valid    bool
	}{
		{"4m", true},
		{"90s", true},
		{"*/10 * * * *", true},
		{"0 */6 * * *", true},
		{"", false},
		{"whenever", false},
		{"* * * *", false},
	}

	for _, tt := range tests {
		err := ValidateSchedule(tt.schedule)
		if tt.valid {
			require.NoError(t, err, "schedule %q", tt.schedule)
		} else {
			require.Error(t, err, "schedule %q", tt.schedule)
		}
	}
}

func TestDurationFallback(t *testing.T) {
	require.Equal(t, 5*time.Second, Duration("5s", time.Minute))
	require.Equal(t, time.Minute, Duration("", time.Minute))
	require.Equal(t, time.Minute, Duration("garbage", time.Minute))
}
