package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/helpdesk")
	t.Setenv("IMAP_USERNAME", "")
	t.Setenv("INBOX_ENABLED", "")
	t.Setenv("INBOX_ALLOWED_SENDERS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/helpdesk", cfg.Postgres.DSN)
	assert.Equal(t, time.Minute, cfg.Inbox.PollInterval())
	assert.False(t, cfg.Inbox.Enabled)
	assert.Empty(t, cfg.Inbox.AllowedSenders)
	assert.Equal(t, "Generated User", cfg.Inbox.PlaceholderUserName)
	assert.Equal(t, 10*time.Second, cfg.SMTP.Timeout())
	assert.Equal(t, "INBOX", cfg.IMAP.Mailbox)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:8000"}, cfg.App.AllowedOrigins)
}

func TestLoadAllowedOriginsOverride(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://desk.example.com, https://admin.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://desk.example.com", "https://admin.example.com"}, cfg.App.AllowedOrigins)
}

func TestQueueDurationsNeverZero(t *testing.T) {
	cases := []struct {
		name string
		cfg  QueueConfig
		want [3]time.Duration
	}{
		{"unset", QueueConfig{}, [3]time.Duration{5 * time.Second, 5 * time.Second, time.Minute}},
		{"negative", QueueConfig{BlockSeconds: -1, FlushTimeoutSeconds: -3, ReclaimIdleSeconds: -1},
			[3]time.Duration{5 * time.Second, 5 * time.Second, time.Minute}},
		{"explicit", QueueConfig{BlockSeconds: 2, FlushTimeoutSeconds: 10, ReclaimIdleSeconds: 30},
			[3]time.Duration{2 * time.Second, 10 * time.Second, 30 * time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want[0], tc.cfg.Block())
			assert.Equal(t, tc.want[1], tc.cfg.FlushTimeout())
			assert.Equal(t, tc.want[2], tc.cfg.ReclaimIdle())
		})
	}
}

func TestLoadZeroBlockFallsBack(t *testing.T) {
	t.Setenv("QUEUE_BLOCK_SECONDS", "0")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Queue.Block())
}

func TestLoadFromEnvFile(t *testing.T) {
	for _, key := range []string{"SMTP_PORT", "SMTP_HOST", "IMAP_USERNAME", "INBOX_ALLOWED_SENDERS", "INBOX_ENABLED"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	path := filepath.Join(t.TempDir(), "test.env")
	content := "SMTP_HOST=smtp.example.com\n" +
		"SMTP_PORT=2525\n" +
		"IMAP_USERNAME=desk@example.com\n" +
		"INBOX_ALLOWED_SENDERS=db <db@example.com>, Ops <ops@example.com>\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:2525", cfg.SMTP.Addr())
	assert.True(t, cfg.Inbox.Enabled)
	assert.Equal(t, []string{"db <db@example.com>", "Ops <ops@example.com>"}, cfg.Inbox.AllowedSenders)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("IMAP_PORT", "not-a-port")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
