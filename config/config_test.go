package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(1<<20), cfg.MaxMessageSize)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.PongTimeout)
	assert.Equal(t, 50*time.Second, cfg.PingInterval)
	assert.Equal(t, 128, cfg.MessageBufferSize)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MESSAGE_BUFFER_SIZE", "32")
	t.Setenv("PING_INTERVAL", "10s")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 32, cfg.MessageBufferSize)
	assert.Equal(t, 10*time.Second, cfg.PingInterval)
}
