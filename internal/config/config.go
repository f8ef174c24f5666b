// Package config loads the quill HCL configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/quillpress/quill/pkg/database"
	"github.com/quillpress/quill/pkg/invalidate"
)

// Config is the quill configuration.
type Config struct {
	// LogLevel is the global log level (default: "info").
	LogLevel string `hcl:"log_level,optional"`

	// Database configures the content store.
	Database *Database `hcl:"database,block"`

	// Identity configures id allocation.
	Identity *Identity `hcl:"identity,block"`

	// Invalidation configures where identity changes are reported.
	Invalidation *invalidate.Config `hcl:"invalidation,block"`
}

// Database configures the database connection.
type Database struct {
	Driver string `hcl:"driver,optional"` // "sqlite" or "postgres"

	// PostgreSQL
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`

	// SQLite
	Path string `hcl:"path,optional"`

	// Connection pool
	MaxIdleConns    int    `hcl:"max_idle_conns,optional"`
	MaxOpenConns    int    `hcl:"max_open_conns,optional"`
	ConnMaxLifetime string `hcl:"conn_max_lifetime,optional"`
	ConnMaxIdleTime string `hcl:"conn_max_idle_time,optional"`
}

// Identity configures id allocation.
type Identity struct {
	// LockTimeout bounds the wait for a collection lock, e.g. "30s". Empty
	// waits indefinitely.
	LockTimeout string `hcl:"lock_timeout,optional"`
}

// Default returns the configuration used when no file is given: a local
// SQLite database and the log invalidation backend.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// NewConfig parses the HCL file at filename and applies defaults. An empty
// filename yields Default().
func NewConfig(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}

	var cfg Config
	if err := hclsimple.DecodeFile(filename, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Database == nil {
		cfg.Database = &Database{}
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = database.DriverSQLite
	}
	if cfg.Database.Driver == database.DriverSQLite && cfg.Database.Path == "" {
		cfg.Database.Path = "quill.db"
	}
	if cfg.Database.Driver == database.DriverPostgres && cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Identity == nil {
		cfg.Identity = &Identity{}
	}
	if cfg.Invalidation == nil {
		cfg.Invalidation = &invalidate.Config{
			Log: &invalidate.LogConfig{Enabled: true},
		}
	}
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error")),
	); err != nil {
		return err
	}

	d := c.Database
	return validation.ValidateStruct(d,
		validation.Field(&d.Driver, validation.Required, validation.In(database.DriverSQLite, database.DriverPostgres)),
		validation.Field(&d.Path, validation.When(d.Driver == database.DriverSQLite, validation.Required)),
		validation.Field(&d.Host, validation.When(d.Driver == database.DriverPostgres, validation.Required)),
		validation.Field(&d.DBName, validation.When(d.Driver == database.DriverPostgres, validation.Required)),
		validation.Field(&d.ConnMaxLifetime, validation.By(isDuration)),
		validation.Field(&d.ConnMaxIdleTime, validation.By(isDuration)),
	)
}

func isDuration(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := time.ParseDuration(s)
	return err
}

// Connection converts the database block into connection settings.
func (d *Database) Connection() (database.Config, error) {
	lifetime, err := parseOptionalDuration(d.ConnMaxLifetime)
	if err != nil {
		return database.Config{}, fmt.Errorf("error parsing conn_max_lifetime: %w", err)
	}
	idle, err := parseOptionalDuration(d.ConnMaxIdleTime)
	if err != nil {
		return database.Config{}, fmt.Errorf("error parsing conn_max_idle_time: %w", err)
	}

	return database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		DBName:          d.DBName,
		SSLMode:         d.SSLMode,
		Path:            d.Path,
		MaxIdleConns:    d.MaxIdleConns,
		MaxOpenConns:    d.MaxOpenConns,
		ConnMaxLifetime: lifetime,
		ConnMaxIdleTime: idle,
	}, nil
}

// Timeout returns the parsed lock timeout.
func (i *Identity) Timeout() (time.Duration, error) {
	d, err := parseOptionalDuration(i.LockTimeout)
	if err != nil {
		return 0, fmt.Errorf("error parsing lock_timeout: %w", err)
	}
	return d, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Example configuration file format:
//
//	log_level = "info"
//
//	database {
//	  driver = "postgres"
//	  host   = "localhost"
//	  user   = "quill"
//	  dbname = "quill"
//	}
//
//	identity {
//	  lock_timeout = "30s"
//	}
//
//	invalidation {
//	  log {
//	    enabled = true
//	  }
//	  redis {
//	    enabled = true
//	    url     = "redis://localhost:6379/0"
//	  }
//	  webhook {
//	    enabled = true
//	    url     = "https://cdn.example.com/purge"
//	    secret  = "..."
//	  }
//	}
