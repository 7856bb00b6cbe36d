package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the server needs from the environment. Parsing
// fails fast on missing or empty required values, so a misconfigured deploy
// never starts serving.
type Config struct {
	Addr string `env:"GUILDGATE_ADDR" envDefault:":8080"`

	Discord DiscordConfig
	JWT     JWTConfig
	Session SessionConfig
	Audit   AuditConfig
	Tracing TracingConfig

	// DatabaseURL selects the postgres account store; when empty the server
	// falls back to the in-memory store (dev only).
	DatabaseURL string `env:"DATABASE_URL"`

	// CookieSecure should be true behind TLS; the credential and session
	// cookies then carry Secure and SameSite=Lax.
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`
}

// DiscordConfig holds the OAuth application credentials and client tuning.
type DiscordConfig struct {
	ClientID     string        `env:"DISCORD_CLIENT_ID,required,notEmpty"`
	ClientSecret string        `env:"DISCORD_CLIENT_SECRET,required,notEmpty"`
	RedirectURI  string        `env:"DISCORD_REDIRECT_URI,required,notEmpty"`
	HTTPTimeout  time.Duration `env:"DISCORD_HTTP_TIMEOUT" envDefault:"10s"`
}

// JWTConfig holds credential signing parameters. The secret is required and
// must be non-empty: issuing tokens with a guessable default is worse than
// refusing to start.
type JWTConfig struct {
	Secret        string `env:"JWT_SECRET,required,notEmpty"`
	LifetimeHours int    `env:"JWT_LIFETIME_HOURS" envDefault:"1"`
	CookieName    string `env:"JWT_COOKIE_NAME" envDefault:"guildgate_token"`
}

// SessionConfig tunes the per-browser session store backing the OAuth flow.
type SessionConfig struct {
	RedisURL string        `env:"REDIS_URL"`
	TTL      time.Duration `env:"SESSION_TTL" envDefault:"10m"`
}

// TracingConfig selects the OTLP trace collector. With no endpoint configured
// spans are recorded against a no-op provider.
type TracingConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// AuditConfig selects the audit sink. With no brokers configured events stay
// in the in-process store.
type AuditConfig struct {
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string   `env:"AUDIT_TOPIC" envDefault:"guildgate.audit"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWT.LifetimeHours <= 0 {
		cfg.JWT.LifetimeHours = 1
	}
	return cfg, nil
}

// Lifetime returns the configured credential lifetime as a duration.
func (c JWTConfig) Lifetime() time.Duration {
	return time.Duration(c.LifetimeHours) * time.Hour
}
