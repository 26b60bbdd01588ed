package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3004"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Authentication
	Auth AuthConfig

	// Snapshot signing
	Signing SigningConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"aurora"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"aurora"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// AuthConfig holds the admin token and bearer token settings
type AuthConfig struct {
	// AdminToken is the opaque operator credential accepted for write paths
	AdminToken string `env:"ADMIN_TOKEN" envDefault:""`

	// JWTSecret verifies HS256 bearer tokens carrying role/tenant_id claims
	JWTSecret string `env:"AUTH_JWT_SECRET" envDefault:""`
}

// SigningConfig holds snapshot signing and verification settings
type SigningConfig struct {
	// Backend selects the signing backend: "hmac" or "sigstore"
	Backend string `env:"SIGNING_BACKEND" envDefault:"hmac"`

	// HMACSecret is the shared secret for the hmac backend
	HMACSecret string `env:"AURORA_SNAPSHOT_SIGNING_SECRET" envDefault:""`

	// DefaultSigner is the signer label recorded on snapshots when the
	// request does not name one
	DefaultSigner string `env:"KG_SNAPSHOT_SIGNER" envDefault:"aurora-kg"`

	// SigstoreEnv selects the sigstore trust root: "production" or "staging"
	SigstoreEnv string `env:"SIGSTORE_ENV" envDefault:"production"`

	// SigstoreVerifyIdentity / SigstoreVerifyIssuer form the certificate
	// identity policy for full sigstore verification
	SigstoreVerifyIdentity string `env:"SIGSTORE_VERIFY_IDENTITY" envDefault:""`
	SigstoreVerifyIssuer   string `env:"SIGSTORE_VERIFY_ISSUER" envDefault:""`

	// SigstoreAllowUnsafePolicy permits verification without an identity
	// policy (accepts 0/1)
	SigstoreAllowUnsafePolicy bool `env:"SIGSTORE_ALLOW_UNSAFE_POLICY" envDefault:"0"`

	// SigstoreOfflineFallback enables structural bundle verification when
	// full verification cannot run (accepts 0/1, default on)
	SigstoreOfflineFallback bool `env:"SIGSTORE_OFFLINE_FALLBACK" envDefault:"1"`

	// SigstoreIdentityToken is an ambient OIDC token for keyless signing;
	// without it sigstore snapshots are written unsigned and attested later
	SigstoreIdentityToken string `env:"SIGSTORE_ID_TOKEN" envDefault:""`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("signing_backend", cfg.Signing.Backend),
	)

	return cfg, nil
}
