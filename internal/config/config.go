package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "relaydesk"
	DefaultPGSSLMode    = "disable"
	DefaultGraphBaseURL = "https://graph.facebook.com/v19.0"
	DefaultRelayBaseURL = "https://api.ultramsg.com"
	DefaultPollSeconds  = 60
	DefaultStaleDays    = 14
	DefaultReminderCron = "@every 6h"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Secrets  SecretsConfig  `toml:"secrets"`
	Graph    GraphConfig    `toml:"graph"`
	Relay    RelayConfig    `toml:"relay"`
	Poller   PollerConfig   `toml:"poller"`
	Reminder ReminderConfig `toml:"reminder"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// SecretsConfig carries the base64-encoded 32-byte key used to seal
// channel credentials at rest.
type SecretsConfig struct {
	Key string `toml:"key"`
}

type GraphConfig struct {
	BaseURL string `toml:"base_url"`
}

type RelayConfig struct {
	BaseURL string `toml:"base_url"`
}

type PollerConfig struct {
	DefaultIntervalSeconds int `toml:"default_interval_seconds"`
}

type ReminderConfig struct {
	Schedule  string `toml:"schedule"`
	StaleDays int    `toml:"stale_days"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Graph: GraphConfig{
			BaseURL: DefaultGraphBaseURL,
		},
		Relay: RelayConfig{
			BaseURL: DefaultRelayBaseURL,
		},
		Poller: PollerConfig{
			DefaultIntervalSeconds: DefaultPollSeconds,
		},
		Reminder: ReminderConfig{
			Schedule:  DefaultReminderCron,
			StaleDays: DefaultStaleDays,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
