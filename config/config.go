package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config is read from the environment, after loading a .env file if present
type Config struct {
	Port              int           `env:"PORT,default=8080"`
	DatabasePath      string        `env:"DATABASE_PATH,default=campusmart.db"`
	UploadDir         string        `env:"UPLOAD_DIR,default=uploads"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	SessionTTL        time.Duration `env:"SESSION_TTL,default=168h"`
	MessageRateLimit  int           `env:"MESSAGE_RATE_LIMIT,default=30"`
	MessageRateWindow time.Duration `env:"MESSAGE_RATE_WINDOW,default=1m"`
	MaxUploadBytes    int           `env:"MAX_UPLOAD_BYTES,default=10485760"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE,default=256"`
	MetricsEnabled    bool          `env:"METRICS_ENABLED,default=true"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}
	if c.MessageRateLimit <= 0 {
		errs = append(errs, errors.New("MESSAGE_RATE_LIMIT must be positive"))
	}
	if c.MessageRateWindow <= 0 {
		errs = append(errs, errors.New("MESSAGE_RATE_WINDOW must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.SendBufferSize <= 0 {
		errs = append(errs, errors.New("SEND_BUFFER_SIZE must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
