package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/conf"
)

func TestLoadShippedConfig(t *testing.T) {
	var c Config
	require.NoError(t, conf.Load("../../../configs/gateway.yaml", &c))

	assert.Equal(t, "lobby-gateway", c.Name)
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "GameSession", c.Lobby.GameSessionName)
	assert.Equal(t, "player-1", c.Lobby.LocalUserID)
	assert.Equal(t, "memory", c.Online.Registry)
	assert.Equal(t, 30*time.Second, c.Online.Breaker.OpenTimeout)
	assert.Equal(t, []string{"localhost:2379"}, c.Etcd.Endpoints)
	assert.Equal(t, "/ws", c.WebSocket.Path)
}

const minimalConfig = `
Name: lobby
Host: 127.0.0.1
Port: 8080
Logger: {}
Lobby: {}
Online:
  Breaker: {}
Metrics: {}
Tracing: {}
`

func TestDefaults(t *testing.T) {
	var c Config
	require.NoError(t, conf.LoadFromYamlBytes([]byte(minimalConfig), &c))

	assert.Equal(t, "info", c.Logger.Level)
	assert.Equal(t, "MainMenu", c.Lobby.IdleContext)
	assert.True(t, c.Lobby.LAN)
	assert.Equal(t, 4, c.Lobby.MaxPlayers)
	assert.Equal(t, 5*time.Second, c.Online.CallTimeout)
	assert.Equal(t, 2*time.Second, c.Online.RosterInterval)
	assert.Equal(t, uint32(5), c.Online.Breaker.MaxFailures)
	assert.Equal(t, 9091, c.Metrics.Port)
	assert.False(t, c.Tracing.Enable)
}

func TestRejectsUnknownRegistry(t *testing.T) {
	var c Config
	err := conf.LoadFromYamlBytes([]byte("Name: lobby\nHost: 127.0.0.1\nPort: 8080\nOnline:\n  Registry: consul\n"), &c)
	assert.Error(t, err)
}
