package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultSessionSecret = "change-me-session-secret"

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":5328"`
	LogMode  string `env:"LOG_MODE" envDefault:"dev"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:segportal.db?_pragma=busy_timeout(5000)"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	Identity  Identity  `envPrefix:"IDENTITY_"`
	Session   Session   `envPrefix:"SESSION_"`
	Redis     Redis     `envPrefix:"REDIS_"`
	Storage   Storage   `envPrefix:"STORAGE_"`
	Minio     Minio     `envPrefix:"MINIO_"`
	Inference Inference `envPrefix:"INFERENCE_"`
	Tracing   Tracing   `envPrefix:"OTEL_"`
}

// Identity describes the external identity provider used for delegated login.
type Identity struct {
	BaseURL    string        `env:"BASE_URL" envDefault:"https://app.cvat.ai"`
	LoginPath  string        `env:"LOGIN_PATH" envDefault:"/api/auth/login"`
	TokenField string        `env:"TOKEN_FIELD" envDefault:"key"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

type Session struct {
	Secret         string        `env:"SECRET" envDefault:"change-me-session-secret"`
	CookieName     string        `env:"COOKIE_NAME" envDefault:"segportal_session"`
	CookiePath     string        `env:"COOKIE_PATH" envDefault:"/"`
	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CookieSameSite string        `env:"COOKIE_SAMESITE" envDefault:"Lax"`
	TTL            time.Duration `env:"TTL" envDefault:"24h"`
	Store          string        `env:"STORE" envDefault:"memory"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"segportal:session:"`
}

type Storage struct {
	Backend string `env:"BACKEND" envDefault:"local"`
	Dir     string `env:"DIR" envDefault:"./uploads"`
}

type Minio struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"segportal-artifacts"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type Inference struct {
	DefaultConfig  string        `env:"DEFAULT_CONFIG" envDefault:"3d_fullres"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"524288000"`
	RequireSession bool          `env:"REQUIRE_SESSION" envDefault:"true"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"10m"`
}

type Tracing struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	Endpoint    string `env:"EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool   `env:"EXPORTER_OTLP_INSECURE" envDefault:"false"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"segportal"`
}

// Load reads an optional .env file and parses the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// a missing .env is normal outside local development
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Identity.Timeout <= 0 {
		return fmt.Errorf("IDENTITY_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.Identity.BaseURL) == "" {
		return fmt.Errorf("IDENTITY_BASE_URL must not be empty")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Session.CookiePath == "" {
		return fmt.Errorf("SESSION_COOKIE_PATH must not be empty")
	}
	sameSite := strings.ToLower(strings.TrimSpace(c.Session.CookieSameSite))
	if sameSite != "lax" && sameSite != "none" && sameSite != "strict" {
		return fmt.Errorf("SESSION_COOKIE_SAMESITE must be one of: Lax, None, Strict")
	}
	if sameSite == "none" && !c.Session.CookieSecure {
		return fmt.Errorf("SESSION_COOKIE_SECURE must be true when SESSION_COOKIE_SAMESITE=None")
	}

	switch c.Session.Store {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be one of: memory, redis")
	}

	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.Dir) == "" {
			return fmt.Errorf("STORAGE_DIR must not be empty")
		}
	case "minio":
		if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when STORAGE_BACKEND=minio")
		}
		if c.Minio.Bucket == "" {
			return fmt.Errorf("MINIO_BUCKET must not be empty")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of: local, minio")
	}

	if c.Inference.MaxUploadBytes <= 0 {
		return fmt.Errorf("INFERENCE_MAX_UPLOAD_BYTES must be > 0")
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.Inference.DefaultConfig) == "" {
		return fmt.Errorf("INFERENCE_DEFAULT_CONFIG must not be empty")
	}

	if c.IsProdLike() {
		if isEmptyOrDefault(c.Session.Secret, defaultSessionSecret) {
			return fmt.Errorf("in prod/release SESSION_SECRET must be set and not default")
		}
		if !c.Session.CookieSecure {
			return fmt.Errorf("in prod/release SESSION_COOKIE_SECURE must be true")
		}
	}

	return nil
}

func (c *Config) IsProdLike() bool {
	env := strings.ToLower(strings.TrimSpace(c.AppEnv))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
