package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/s1natex/tasks-service/internal/middleware"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Env       string `env:"APP_ENV" env-default:"local"`
	HTTP      HTTPConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	Log       LogConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	Tracing   TracingConfig
}

type HTTPConfig struct {
	Host              string        `env:"HOST" env-default:""`
	Port              int           `env:"PORT" env-default:"3000"`
	RequestTimeout    time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"15s"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type DatabaseConfig struct {
	Driver         string        `env:"DB_DRIVER" env-default:"postgres"`
	URL            string        `env:"DATABASE_URL"`
	Host           string        `env:"DB_HOST" env-default:"localhost"`
	Port           int           `env:"DB_PORT" env-default:"5432"`
	User           string        `env:"DB_USER" env-default:"postgres"`
	Password       string        `env:"DB_PASSWORD"`
	Name           string        `env:"DB_NAME" env-default:"tasks"`
	SSLMode        string        `env:"DB_SSL_MODE" env-default:"disable"`
	MaxConns       int32         `env:"DB_MAX_CONNS" env-default:"10"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" env-default:"30s"`
	SQLitePath     string        `env:"SQLITE_PATH" env-default:"data/tasks.db"`
}

// DSN prefers DATABASE_URL and otherwise assembles a postgres URL from the
// discrete DB_* settings.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	if c.Password == "" {
		u.User = url.User(c.User)
	}
	return u.String()
}

type CORSConfig struct {
	ClientURL string `env:"CLIENT_URL" env-default:"http://localhost:5173"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" env-default:"true"`
}

type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" env-default:"0"`
	Burst int     `env:"RATE_LIMIT_BURST" env-default:"20"`
}

type AuthConfig struct {
	Mode        string `env:"AUTH_MODE" env-default:"none"`
	APIKey      string `env:"AUTH_API_KEY"`
	BearerToken string `env:"AUTH_BEARER_TOKEN"`
}

type TracingConfig struct {
	Exporter    string `env:"OTEL_TRACES_EXPORTER" env-default:"none"`
	ServiceName string `env:"OTEL_SERVICE_NAME" env-default:"tasks-api"`
}

// Load reads the environment once and validates the result.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV: unknown env %q", c.Env))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: out of range: %d", c.HTTP.Port))
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unknown driver %q", c.Database.Driver))
	}

	mode, err := middleware.ParseAuthMode(c.Auth.Mode)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("AUTH_MODE: %w", err))
	case mode == middleware.AuthAPIKey && c.Auth.APIKey == "":
		errs = append(errs, errors.New("AUTH_API_KEY: required when AUTH_MODE=apikey"))
	case mode == middleware.AuthBearer && c.Auth.BearerToken == "":
		errs = append(errs, errors.New("AUTH_BEARER_TOKEN: required when AUTH_MODE=bearer"))
	}
	if err == nil {
		c.Auth.Mode = string(mode)
	}

	c.Tracing.Exporter = strings.ToLower(c.Tracing.Exporter)
	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("OTEL_TRACES_EXPORTER: unknown exporter %q", c.Tracing.Exporter))
	}

	return errors.Join(errs...)
}
