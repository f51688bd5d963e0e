// Package config defines the top-level configuration for the marketplace
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// duration wraps time.Duration so TOML values like "30s" parse directly.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETD_* environment
// variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	IPFS     IPFSConfig     `toml:"ipfs"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Metadata MetadataConfig `toml:"metadata"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the Ethereum endpoints and contract addresses. Backend
// "embedded" runs the in-process ledger instead of a chain, for local
// development and tests.
type ChainConfig struct {
	Backend            string `toml:"backend"` // "rpc" or "embedded"
	RPCURL             string `toml:"rpc_url"`
	WSURL              string `toml:"ws_url"`
	ChainID            int64  `toml:"chain_id"`
	MarketplaceAddress string `toml:"marketplace_address"`
	TokenAddress       string `toml:"token_address"`

	// EmbeddedListingFeeEther is the listing fee the embedded ledger
	// charges, in ether.
	EmbeddedListingFeeEther string `toml:"embedded_listing_fee_ether"`
	// EmbeddedAccount is the address the embedded backend acts as.
	EmbeddedAccount string `toml:"embedded_account"`
}

// WalletConfig holds the signing key sources.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// IPFSConfig holds the Kubo node and public gateway endpoints.
type IPFSConfig struct {
	APIURL     string   `toml:"api_url"`
	GatewayURL string   `toml:"gateway_url"`
	Timeout    duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. The archive
// features are skipped entirely when Enabled is false.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MetadataConfig tunes the metadata fetcher.
type MetadataConfig struct {
	Concurrency  int      `toml:"concurrency"`
	FetchTimeout duration `toml:"fetch_timeout"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds operator alerting channels. Events filters which event
// types are announced; empty means all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig schedules the S3 journal archives and listing snapshots.
type ArchiveConfig struct {
	Interval duration `toml:"interval"`
}

// Defaults returns a Config with sensible development defaults. Load merges
// the TOML file and environment on top of these.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			Backend:                 "rpc",
			RPCURL:                  "http://127.0.0.1:8545",
			ChainID:                 31337,
			EmbeddedListingFeeEther: "0.025",
		},
		IPFS: IPFSConfig{
			APIURL:     "http://127.0.0.1:5001",
			GatewayURL: "https://ipfs.io",
			Timeout:    duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "127.0.0.1",
			Port:          5432,
			Database:      "marketd",
			User:          "marketd",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "127.0.0.1:6379",
			PoolSize: 10,
		},
		Metadata: MetadataConfig{
			Concurrency:  8,
			FetchTimeout: duration{10 * time.Second},
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateLimit:  60,
			RateWindow: duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Interval: duration{time.Hour},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the daemon's run modes: serve exposes the API only,
// index follows chain events only, full does both.
var validModes = map[string]bool{
	"serve": true,
	"index": true,
	"full":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the Config and returns a combined error naming every
// problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, index, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch c.Chain.Backend {
	case "embedded":
		if c.Chain.EmbeddedListingFeeEther == "" {
			errs = append(errs, "chain: embedded_listing_fee_ether must be set for the embedded backend")
		}
	case "rpc":
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
		}
		if c.Chain.MarketplaceAddress == "" {
			errs = append(errs, "chain: marketplace_address must not be empty")
		}
		if c.Chain.TokenAddress == "" {
			errs = append(errs, "chain: token_address must not be empty")
		}
		if c.Mode != "serve" && c.Chain.WSURL == "" {
			errs = append(errs, "chain: ws_url is required for the indexer (mode "+c.Mode+")")
		}
	default:
		errs = append(errs, fmt.Sprintf("chain: unknown backend %q (valid: rpc, embedded)", c.Chain.Backend))
	}

	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.IPFS.APIURL == "" {
		errs = append(errs, "ipfs: api_url must not be empty")
	}
	if c.IPFS.GatewayURL == "" {
		errs = append(errs, "ipfs: gateway_url must not be empty")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Metadata.Concurrency < 1 {
		errs = append(errs, "metadata: concurrency must be >= 1")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
