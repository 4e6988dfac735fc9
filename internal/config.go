package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pathnote/internal/notepath"
)

// Runtimes.
const (
	RuntimeLocal = "local"
	RuntimeEdge  = "edge"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PATHNOTE_"

// Config represents the application configuration. Every field can be
// overridden from the environment with the PATHNOTE_ prefix, for example
// PATHNOTE_EDGE_POSTGRES_DSN.
type Config struct {
	App       ApplicationConfig `yaml:"app" envPrefix:"APP_"`
	Runtime   string            `yaml:"runtime" env:"RUNTIME"`
	Notes     NotesConfig       `yaml:"notes" envPrefix:"NOTES_"`
	Local     LocalConfig       `yaml:"local" envPrefix:"LOCAL_"`
	Edge      EdgeConfig        `yaml:"edge" envPrefix:"EDGE_"`
	Admin     AdminConfig       `yaml:"admin" envPrefix:"ADMIN_"`
	RateLimit RateLimitConfig   `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Inbox     InboxConfig       `yaml:"inbox" envPrefix:"INBOX_"`
	Telemetry TelemetryConfig   `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := validation.Validate(c.Runtime,
		validation.Required, validation.In(RuntimeLocal, RuntimeEdge)); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	if err := c.Notes.Validate(); err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	switch c.Runtime {
	case RuntimeLocal:
		if err := c.Local.Validate(); err != nil {
			return fmt.Errorf("local: %w", err)
		}
	case RuntimeEdge:
		if err := c.Edge.Validate(); err != nil {
			return fmt.Errorf("edge: %w", err)
		}
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" env:"LOG_LEVEL"`
	HTTP     HTTPConfig `yaml:"http" envPrefix:"HTTP_"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Required, validation.Min(time.Second)),
	)
}

// NotesConfig holds the note path rules and password hashing cost.
type NotesConfig struct {
	MinPathLength int `yaml:"min_path_length" env:"MIN_PATH_LENGTH"`
	MaxPathLength int `yaml:"max_path_length" env:"MAX_PATH_LENGTH"`
	// Reserved extends the built-in reserved names (admin, api, static).
	Reserved   []string `yaml:"reserved" env:"RESERVED" envSeparator:","`
	BcryptCost int      `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	// ViewTimeout bounds each background view count increment.
	ViewTimeout time.Duration `yaml:"view_timeout" env:"VIEW_TIMEOUT"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinPathLength, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxPathLength, validation.Required, validation.Min(c.MinPathLength), validation.Max(64)),
		validation.Field(&c.BcryptCost, validation.When(c.BcryptCost != 0, validation.Min(4), validation.Max(31))),
		validation.Field(&c.ViewTimeout, validation.Min(time.Duration(0))),
	)
}

// PathRules returns the path rules described by the configuration.
func (c *NotesConfig) PathRules() notepath.Rules {
	reserved := append([]string(nil), notepath.DefaultReserved...)
	reserved = append(reserved, c.Reserved...)
	return notepath.Rules{MinLength: c.MinPathLength, MaxLength: c.MaxPathLength, Reserved: reserved}
}

// LocalConfig configures the single-machine runtime.
type LocalConfig struct {
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	BlobDir    string `yaml:"blob_dir" env:"BLOB_DIR"`
	// CacheCapacity bounds the in-process cache; 0 is unbounded.
	CacheCapacity uint64 `yaml:"cache_capacity" env:"CACHE_CAPACITY"`
}

// Validate validates the local runtime configuration.
func (c *LocalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SQLitePath, validation.Required),
		validation.Field(&c.BlobDir, validation.Required),
	)
}

// EdgeConfig configures the managed-services runtime.
type EdgeConfig struct {
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	S3       S3Config       `yaml:"s3" envPrefix:"S3_"`
}

// Validate validates the edge runtime configuration.
func (c *EdgeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Postgres),
		validation.Field(&c.Redis),
		validation.Field(&c.S3),
	)
}

// PostgresConfig holds the note store connection.
type PostgresConfig struct {
	DSN string `yaml:"dsn" env:"DSN"`
}

// Validate validates the Postgres configuration.
func (c PostgresConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DSN, validation.Required),
	)
}

// RedisConfig holds the cache connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// Validate validates the Redis configuration.
func (c RedisConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0)),
	)
}

// S3Config holds the blob bucket. Endpoint selects an S3-compatible
// service such as R2 or MinIO.
type S3Config struct {
	Region    string `yaml:"region" env:"REGION"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	Prefix    string `yaml:"prefix" env:"PREFIX"`
}

// Validate validates the S3 configuration.
func (c S3Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Bucket, validation.Required),
	); err != nil {
		return err
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("access_key and secret_key must be set together")
	}
	return nil
}

// AdminConfig holds the admin panel credentials. An empty password
// disables admin login.
type AdminConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	// JWTSecret signs admin sessions. When empty a random secret is
	// generated at startup and sessions do not survive a restart.
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// Validate validates the admin configuration.
func (c *AdminConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.JWTSecret, validation.When(c.JWTSecret != "", validation.Length(16, 0))),
		validation.Field(&c.TokenTTL, validation.Required, validation.Min(time.Minute)),
	)
}

// Enabled reports whether admin login is possible.
func (c *AdminConfig) Enabled() bool {
	return c.Password != ""
}

// RateLimitConfig holds the per-IP limit on login and password routes.
type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled" env:"ENABLED"`
	PerMinute int  `yaml:"per_minute" env:"PER_MINUTE"`
	Burst     int  `yaml:"burst" env:"BURST"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.PerMinute, validation.Required, validation.Min(1)),
		validation.Field(&c.Burst, validation.Required, validation.Min(1)),
	)
}

// InboxConfig holds the drop folder watched for export documents. An empty
// path disables it.
type InboxConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// TelemetryConfig holds OTLP trace export settings.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// Validate validates the telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.SampleRatio, validation.Min(0.0), validation.Max(1.0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:            8080,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		Runtime: RuntimeLocal,
		Notes: NotesConfig{
			MinPathLength: 1,
			MaxPathLength: 20,
			ViewTimeout:   5 * time.Second,
		},
		Local: LocalConfig{
			SQLitePath: "./pathnote.db",
			BlobDir:    "./blobs",
		},
		Edge: EdgeConfig{
			Redis: RedisConfig{Prefix: "pathnote:"},
			S3:    S3Config{Region: "auto"},
		},
		Admin: AdminConfig{
			Username: "admin",
			TokenTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerMinute: 10,
			Burst:     5,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "pathnote",
			SampleRatio: 1,
		},
	}
}
