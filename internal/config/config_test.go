package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocalDefaults(t *testing.T) {
	cfg, err := LoadLocal("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":3810", cfg.Local.ListenAddr)
	assert.Equal(t, "ws://localhost:3811", cfg.Local.TunnelURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRemoteDefaults(t *testing.T) {
	cfg, err := LoadRemote("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":3811", cfg.Remote.ListenAddr)
	assert.NoError(t, cfg.Validate())
}

func TestLocalConfigValidateRejectsEmptyAddr(t *testing.T) {
	cfg := DefaultLocalConfig()
	cfg.Local.ListenAddr = ""
	assert.Error(t, cfg.Validate())
}

func TestRemoteConfigValidateRejectsZeroTimeout(t *testing.T) {
	cfg := DefaultRemoteConfig()
	cfg.Remote.UpstreamDialTimeout = 0
	assert.Error(t, cfg.Validate())
}
