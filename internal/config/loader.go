package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from the TOML file at path, layered on top of
// Defaults and below MARKETD_* environment variables. A missing file is not
// an error; the defaults plus environment are used. A .env file in the
// working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var err error

	setStr("MARKETD_MODE", &cfg.Mode)
	setStr("MARKETD_LOG_LEVEL", &cfg.LogLevel)

	setStr("MARKETD_CHAIN_BACKEND", &cfg.Chain.Backend)
	setStr("MARKETD_CHAIN_RPC_URL", &cfg.Chain.RPCURL)
	setStr("MARKETD_CHAIN_WS_URL", &cfg.Chain.WSURL)
	err = firstErr(err, setInt64("MARKETD_CHAIN_ID", &cfg.Chain.ChainID))
	setStr("MARKETD_MARKETPLACE_ADDRESS", &cfg.Chain.MarketplaceAddress)
	setStr("MARKETD_TOKEN_ADDRESS", &cfg.Chain.TokenAddress)
	setStr("MARKETD_EMBEDDED_ACCOUNT", &cfg.Chain.EmbeddedAccount)

	setStr("MARKETD_WALLET_PRIVATE_KEY", &cfg.Wallet.PrivateKey)
	setStr("MARKETD_WALLET_KEY_PATH", &cfg.Wallet.EncryptedKeyPath)
	setStr("MARKETD_WALLET_KEY_PASSWORD", &cfg.Wallet.KeyPassword)

	setStr("MARKETD_IPFS_API_URL", &cfg.IPFS.APIURL)
	setStr("MARKETD_IPFS_GATEWAY_URL", &cfg.IPFS.GatewayURL)
	err = firstErr(err, setDuration("MARKETD_IPFS_TIMEOUT", &cfg.IPFS.Timeout))

	setStr("MARKETD_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("MARKETD_POSTGRES_HOST", &cfg.Postgres.Host)
	err = firstErr(err, setInt("MARKETD_POSTGRES_PORT", &cfg.Postgres.Port))
	setStr("MARKETD_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("MARKETD_POSTGRES_USER", &cfg.Postgres.User)
	setStr("MARKETD_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("MARKETD_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	err = firstErr(err, setBool("MARKETD_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations))

	setStr("MARKETD_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("MARKETD_REDIS_PASSWORD", &cfg.Redis.Password)
	err = firstErr(err, setInt("MARKETD_REDIS_DB", &cfg.Redis.DB))
	err = firstErr(err, setBool("MARKETD_REDIS_TLS", &cfg.Redis.TLSEnabled))

	err = firstErr(err, setBool("MARKETD_S3_ENABLED", &cfg.S3.Enabled))
	setStr("MARKETD_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("MARKETD_S3_REGION", &cfg.S3.Region)
	setStr("MARKETD_S3_BUCKET", &cfg.S3.Bucket)
	setStr("MARKETD_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("MARKETD_S3_SECRET_KEY", &cfg.S3.SecretKey)

	err = firstErr(err, setBool("MARKETD_SERVER_ENABLED", &cfg.Server.Enabled))
	err = firstErr(err, setInt("MARKETD_SERVER_PORT", &cfg.Server.Port))
	setStringSlice("MARKETD_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setStr("MARKETD_API_KEY", &cfg.Server.APIKey)
	err = firstErr(err, setInt("MARKETD_RATE_LIMIT", &cfg.Server.RateLimit))
	err = firstErr(err, setDuration("MARKETD_RATE_WINDOW", &cfg.Server.RateWindow))

	setStr("MARKETD_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("MARKETD_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("MARKETD_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("MARKETD_NOTIFY_EVENTS", &cfg.Notify.Events)

	err = firstErr(err, setDuration("MARKETD_ARCHIVE_INTERVAL", &cfg.Archive.Interval))

	return err
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

func setStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(key string, dst *int64) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(key string, dst *bool) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(key string, dst *duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	dst.Duration = d
	return nil
}

func setStringSlice(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
