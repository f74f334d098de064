// Package config provides configuration loading for the tunnel system.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LogConfig holds logging configuration, shared by local and remote.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ObservabilityConfig holds the metrics endpoint configuration.
type ObservabilityConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LocalConfig is the complete configuration for the local (SOCKS5) side.
type LocalConfig struct {
	Local struct {
		ListenAddr     string        `mapstructure:"listen_addr"`
		TunnelURL      string        `mapstructure:"tunnel_url"`
		SwitchInterval time.Duration `mapstructure:"switch_interval"`
		DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
		ReconnectDelay time.Duration `mapstructure:"reconnect_backoff"`
	} `mapstructure:"local"`
	Logging       LogConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// RemoteConfig is the complete configuration for the remote (tunnel
// terminating) side.
type RemoteConfig struct {
	Remote struct {
		ListenAddr          string        `mapstructure:"listen_addr"`
		UpstreamDialTimeout time.Duration `mapstructure:"upstream_dial_timeout"`
		UpstreamIdleTimeout time.Duration `mapstructure:"upstream_idle_timeout"`
	} `mapstructure:"remote"`
	Logging       LogConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DefaultLocalConfig returns a LocalConfig with the spec's defaults.
func DefaultLocalConfig() *LocalConfig {
	cfg := &LocalConfig{}
	cfg.Local.ListenAddr = ":3810"
	cfg.Local.TunnelURL = "ws://localhost:3811"
	cfg.Local.SwitchInterval = 8 * time.Second
	cfg.Local.DrainTimeout = 50 * time.Millisecond
	cfg.Local.ReconnectDelay = 500 * time.Millisecond
	cfg.Logging = LogConfig{Level: "info", Format: "console"}
	cfg.Observability.MetricsAddr = ":9400"
	return cfg
}

// DefaultRemoteConfig returns a RemoteConfig with the spec's defaults.
func DefaultRemoteConfig() *RemoteConfig {
	cfg := &RemoteConfig{}
	cfg.Remote.ListenAddr = ":3811"
	cfg.Remote.UpstreamDialTimeout = 10 * time.Second
	cfg.Remote.UpstreamIdleTimeout = 60 * time.Second
	cfg.Logging = LogConfig{Level: "info", Format: "console"}
	cfg.Observability.MetricsAddr = ":9401"
	return cfg
}

// LoadLocal loads local-side configuration from an optional file, flags,
// and HALFTUNNEL_-prefixed environment variables, in increasing priority.
func LoadLocal(configPath string, flags *pflag.FlagSet) (*LocalConfig, error) {
	v := newViper(configPath, flags)

	defaults := DefaultLocalConfig()
	v.SetDefault("local.listen_addr", defaults.Local.ListenAddr)
	v.SetDefault("local.tunnel_url", defaults.Local.TunnelURL)
	v.SetDefault("local.switch_interval", defaults.Local.SwitchInterval)
	v.SetDefault("local.drain_timeout", defaults.Local.DrainTimeout)
	v.SetDefault("local.reconnect_backoff", defaults.Local.ReconnectDelay)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("observability.metrics_addr", defaults.Observability.MetricsAddr)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg LocalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal local config: %w", err)
	}
	return &cfg, nil
}

// LoadRemote loads remote-side configuration the same way LoadLocal does.
func LoadRemote(configPath string, flags *pflag.FlagSet) (*RemoteConfig, error) {
	v := newViper(configPath, flags)

	defaults := DefaultRemoteConfig()
	v.SetDefault("remote.listen_addr", defaults.Remote.ListenAddr)
	v.SetDefault("remote.upstream_dial_timeout", defaults.Remote.UpstreamDialTimeout)
	v.SetDefault("remote.upstream_idle_timeout", defaults.Remote.UpstreamIdleTimeout)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("observability.metrics_addr", defaults.Observability.MetricsAddr)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg RemoteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal remote config: %w", err)
	}
	return &cfg, nil
}

func newViper(configPath string, flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/halftunnel/")
	}

	v.SetEnvPrefix("HALFTUNNEL")
	v.AutomaticEnv()

	if flags != nil {
		_ = v.BindPFlags(flags)
	}

	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Validate checks a LocalConfig for obviously invalid values.
func (c *LocalConfig) Validate() error {
	if c.Local.ListenAddr == "" {
		return fmt.Errorf("local.listen_addr must not be empty")
	}
	if c.Local.TunnelURL == "" {
		return fmt.Errorf("local.tunnel_url must not be empty")
	}
	if c.Local.SwitchInterval <= 0 {
		return fmt.Errorf("local.switch_interval must be positive")
	}
	return nil
}

// Validate checks a RemoteConfig for obviously invalid values.
func (c *RemoteConfig) Validate() error {
	if c.Remote.ListenAddr == "" {
		return fmt.Errorf("remote.listen_addr must not be empty")
	}
	if c.Remote.UpstreamDialTimeout <= 0 {
		return fmt.Errorf("remote.upstream_dial_timeout must be positive")
	}
	return nil
}
