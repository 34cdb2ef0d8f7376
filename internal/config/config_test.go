package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8083, cfg.Server.Port)
	require.Equal(t, 3*time.Second, cfg.Chat.TypingTimeout)
	require.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	require.Equal(t, 256, cfg.WebSocket.SendBuffer)
	require.Equal(t, "chat.events", cfg.AMQP.Exchange)
	require.Empty(t, cfg.Redis.Address)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "9999")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("CHAT_TYPING_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, "redis:6379", cfg.Redis.Address)
	require.Equal(t, 5*time.Second, cfg.Chat.TypingTimeout)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
