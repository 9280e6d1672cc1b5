package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"

	AuthHeader = "header"
	AuthJWT    = "jwt"
)

type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"memory"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE"`
	RedisAddr     string `env:"REDIS_ADDR"`

	AgentID                  string `env:"AGENT_ID" envDefault:"reality-firewall-agent"`
	OwnerID                  string `env:"OWNER_ID"`
	KeystorePath             string `env:"KEYSTORE_PATH" envDefault:"./data/keystore.json"`
	SigningPrivateKeySeedHex string `env:"SIGNING_PRIVATE_KEY_SEED_HEX"`
	SigningPrivateKeyBase64  string `env:"SIGNING_PRIVATE_KEY_BASE64"`

	AuthMode    string        `env:"AUTH_MODE" envDefault:"header"`
	JWTSecret   string        `env:"JWT_SECRET"`
	JWTIssuer   string        `env:"JWT_ISSUER"`
	JWTAudience string        `env:"JWT_AUDIENCE"`
	JWTLeeway   time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`

	RateLimitRequests      int  `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindowSeconds int  `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	RateLimitFailClosed    bool `env:"RATE_LIMIT_FAIL_CLOSED"`
	RateLimitMaxKeys       int  `env:"RATE_LIMIT_MAX_KEYS" envDefault:"10000"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"firewall"`
	ClickHouseDSN    string   `env:"CLICKHOUSE_DSN"`

	EventQueueSize      int           `env:"EVENT_QUEUE_SIZE" envDefault:"1024"`
	EventPublishTimeout time.Duration `env:"EVENT_PUBLISH_TIMEOUT" envDefault:"5s"`

	PaymentFacilitatorURL string        `env:"PAYMENT_FACILITATOR_URL"`
	DevPaymentRefs        []string      `env:"DEV_PAYMENT_REFS" envSeparator:","`
	NarratorURL           string        `env:"NARRATOR_URL"`
	PolicyBundlePath      string        `env:"POLICY_BUNDLE_PATH"`
	EntryCacheTTL         time.Duration `env:"ENTRY_CACHE_TTL" envDefault:"5m"`

	BootstrapFile string `env:"BOOTSTRAP_FILE"`
}

func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerMemory:
	case LedgerPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for ledger backend %q", c.LedgerBackend)
		}
	case LedgerRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for ledger backend %q", c.LedgerBackend)
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	switch c.AuthMode {
	case AuthHeader:
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	if c.RateLimitRequests < 0 || c.RateLimitWindowSeconds <= 0 {
		return fmt.Errorf("rate limit requires RATE_LIMIT_REQUESTS >= 0 and RATE_LIMIT_WINDOW_SECONDS > 0")
	}
	if c.AgentID == "" {
		return fmt.Errorf("AGENT_ID is required")
	}
	return nil
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
