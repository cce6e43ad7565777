package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "teamlink"
	DefaultPGSSLMode        = "disable"
	DefaultUploadMaxBytes   = 25 * 1024 * 1024
	DefaultUploadDir        = "data/attachments"
	DefaultTypingTimeoutSec = 3
	DefaultSummarizerURL    = "http://127.0.0.1:8090"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Auth       AuthConfig       `toml:"auth"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Bridge     BridgeConfig     `toml:"bridge"`
	Upload     UploadConfig     `toml:"upload"`
	Hub        HubConfig        `toml:"hub"`
	Summarizer SummarizerConfig `toml:"summarizer"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN returns the connection string for pgx and migrate.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type BridgeConfig struct {
	// BotToken authenticates the platform bot used for relay and linking.
	BotToken string `toml:"bot_token"`
	// LinkSecret signs one-time linking codes issued in-platform.
	LinkSecret string `toml:"link_secret"`
	// WebhookSecret is the opaque path segment the platform posts updates to.
	WebhookSecret string `toml:"webhook_secret"`
	// LinkCodeTTLSeconds bounds how long an issued linking code stays valid.
	LinkCodeTTLSeconds int `toml:"link_code_ttl_seconds"`
	// QueueSize bounds the outbound relay queue.
	QueueSize int `toml:"queue_size"`
}

type UploadConfig struct {
	MaxBytes int64  `toml:"max_bytes"`
	Dir      string `toml:"dir"`
	// StaleAfterSeconds controls when abandoned upload sessions are swept.
	StaleAfterSeconds int `toml:"stale_after_seconds"`
}

type HubConfig struct {
	TypingTimeoutSeconds int `toml:"typing_timeout_seconds"`
}

type SummarizerConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
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
		Bridge: BridgeConfig{
			LinkCodeTTLSeconds: 600,
			QueueSize:          256,
		},
		Upload: UploadConfig{
			MaxBytes:          DefaultUploadMaxBytes,
			Dir:               DefaultUploadDir,
			StaleAfterSeconds: 3600,
		},
		Hub: HubConfig{
			TypingTimeoutSeconds: DefaultTypingTimeoutSec,
		},
		Summarizer: SummarizerConfig{
			BaseURL:        DefaultSummarizerURL,
			TimeoutSeconds: 30,
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
