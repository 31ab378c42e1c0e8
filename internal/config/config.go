// Package config loads lifeledger's runtime configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix = "LIFELEDGER"

	DefaultConfigFile    = "lifeledger.yml"
	DefaultServerAddress = ":8080"
	DefaultDatabasePath  = "lifeledger.db"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Configuration holds all configuration for lifeledger.
type Configuration struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Reminders RemindersConfig `mapstructure:"reminders"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// DatabaseConfig selects the storage backend. Path is used by sqlite, DSN by
// postgres.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level"`      // debug, info, warn, error
	Format     string `mapstructure:"format"`     // json, console
	OutputFile string `mapstructure:"outputFile"` // empty logs to stderr
}

// AuthConfig configures bearer-token auth. An empty secret disables auth and
// every request acts as the "local" owner.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// Enabled reports whether enough is configured to send mail.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != "" && len(s.To) > 0
}

type RemindersConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	LeadDays int           `mapstructure:"leadDays"` // Days ahead an EMI reminder is sent
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", DefaultServerAddress)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.dsn", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.to", []string{})
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.interval", time.Hour)
	v.SetDefault("reminders.leadDays", 3)
}

// LoadConfiguration reads configPath (YAML) if it exists and applies
// LIFELEDGER_* environment overrides on top, e.g. LIFELEDGER_DATABASE_DRIVER.
// A missing file is not an error; defaults and environment are used.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil && !isMissingFile(err) {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Validate checks option combinations that viper cannot.
func (c *Configuration) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Reminders.Enabled && c.Reminders.Interval <= 0 {
		return fmt.Errorf("reminders.interval must be positive")
	}
	if c.Reminders.LeadDays < 0 {
		return fmt.Errorf("reminders.leadDays must not be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdownTimeout must be positive")
	}
	return nil
}
