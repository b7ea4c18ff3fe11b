package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalyx/chronicle/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCommon = `
version = 1

[debug]
log_level = "debug"
max_logs_to_keep = 3
max_log_lines = 100

[postgresql]
host = "localhost"
port = 5432
user = "postgres"
db_name = "chronicle"

[redis]
host = "localhost"
port = 6379

[encryption]
master_key = "0123456789abcdef0123"
`

const validBot = `
version = 1
request_timeout = 2500

[discord]
token = "token"

[cache]
batch_size = 50
batch_expiration = 10
`

const validWorker = `
version = 1

[purge]
retention = 24
`

func writeConfigs(t *testing.T, common, bot, worker string) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"common.toml": common,
		"bot.toml":    bot,
		"worker.toml": worker,
	}

	for name, content := range files {
		if content == "" {
			continue
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	return dir
}

func TestLoadConfigFrom(t *testing.T) {
	t.Parallel()

	dir := writeConfigs(t, validCommon, validBot, validWorker)

	cfg, usedPath, err := config.LoadConfigFrom([]string{filepath.Join(dir, "missing"), dir})
	require.NoError(t, err)

	assert.Equal(t, dir, usedPath)
	assert.Equal(t, "debug", cfg.Common.Debug.LogLevel)
	assert.Equal(t, 5432, cfg.Common.PostgreSQL.Port)
	assert.Equal(t, "token", cfg.Bot.Discord.Token)
	assert.Equal(t, 50, cfg.Bot.Cache.BatchSize)
	assert.Equal(t, 2500*time.Millisecond, cfg.Bot.RequestTimeoutDuration())
	assert.Equal(t, 24*time.Hour, cfg.Worker.Purge.RetentionDuration())
	assert.Equal(t, time.Hour, cfg.Worker.Purge.IntervalDuration())
}

func TestLoadConfigFromErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		common  string
		bot     string
		worker  string
		wantErr error
	}{
		{
			name:    "missing worker file",
			common:  validCommon,
			bot:     validBot,
			wantErr: config.ErrConfigFileNotFound,
		},
		{
			name:    "missing version",
			common:  validCommon,
			bot:     "[discord]\ntoken = \"token\"\n",
			worker:  validWorker,
			wantErr: config.ErrConfigVersionMissing,
		},
		{
			name:    "version mismatch",
			common:  validCommon,
			bot:     validBot,
			worker:  "version = 2\n",
			wantErr: config.ErrConfigVersionMismatch,
		},
		{
			name:    "short master key",
			common:  "version = 1\n[postgresql]\nhost = \"h\"\nport = 1\nuser = \"u\"\ndb_name = \"d\"\n[redis]\nhost = \"h\"\nport = 1\n[encryption]\nmaster_key = \"short\"\n",
			bot:     validBot,
			worker:  validWorker,
			wantErr: config.ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := writeConfigs(t, tt.common, tt.bot, tt.worker)

			_, _, err := config.LoadConfigFrom([]string{dir})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPurgeDefaults(t *testing.T) {
	t.Parallel()

	var p config.Purge
	assert.Equal(t, 7*24*time.Hour, p.RetentionDuration())
	assert.Equal(t, time.Hour, p.IntervalDuration())

	var b config.BotConfig
	assert.Equal(t, 5*time.Second, b.RequestTimeoutDuration())
}
