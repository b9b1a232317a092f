package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// MaxBodyBytes caps the size of any request body accepted by the
	// server (the /act batch body in particular); oversize bodies get 413.
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"1000000"`

	Database    DatabaseConfig
	Admin       AdminConfig
	EnvDefaults EnvSettingsDefaults

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"arenaeval"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"arenaeval"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// AdminConfig holds the server's administrative credentials. Any one of
// several prefix-tagged hashes ("sha256:<hex>") may authenticate an admin
// request, so credentials can be rotated without downtime.
type AdminConfig struct {
	// PasswordHashesRaw is a comma-separated list of "sha256:<hex>" admin
	// password hashes. Any one of them verifying a submitted password
	// authenticates the request.
	PasswordHashesRaw string `env:"ADMIN_PASSWORD_HASHES" envDefault:""`
}

// Hashes splits the raw comma-separated env value into individual hashes,
// trimming whitespace and dropping empty entries.
func (a *AdminConfig) Hashes() []string {
	parts := strings.Split(a.PasswordHashesRaw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnvSettingsDefaults are the fallback environment settings applied when a
// capability's own Settings() omits a field.
type EnvSettingsDefaults struct {
	MinRunsForFullyEvaluated int `env:"DEFAULT_MIN_RUNS_FOR_FULLY_EVALUATED" envDefault:"50"`
	NumberOfActionRequests   int `env:"DEFAULT_NUMBER_OF_ACTION_REQUESTS" envDefault:"5"`
}

// NewConfig loads configuration from environment variables.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.Int("admin_hashes", len(cfg.Admin.Hashes())),
	)

	return cfg, nil
}
