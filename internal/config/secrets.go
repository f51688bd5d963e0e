package config

const redacted = "***"

// RedactedConfig returns a copy of the Config safe to log: credentials and
// key material are replaced with a placeholder, slices are copied so the
// original is never aliased.
func RedactedConfig(c *Config) Config {
	out := *c

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), c.Notify.Events...)

	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
