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
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Chat.HistoryLimit)
	assert.Equal(t, 50, cfg.Chat.PreviewLength)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Storage.URLTTL)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("server:\n  port: 7000\nchat:\n  history_limit: 20\ncache:\n  driver: redis\n  ttl: 30s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	t.Setenv("PORT", "7100")
	t.Setenv("DB_DSN", "postgres://example")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Chat.HistoryLimit)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "postgres://example", cfg.Database.DSN)
}
