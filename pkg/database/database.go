package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quillpress/quill/pkg/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds configuration for database connection.
type Config struct {
	Driver string // "postgres" or "sqlite"

	// PostgreSQL config
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// SQLite config
	Path string // e.g., "quill.db"

	// Connection pool settings
	MaxIdleConns    int           // Maximum idle connections in pool (default: 10)
	MaxOpenConns    int           // Maximum open connections (default: 25, sqlite: 1)
	ConnMaxLifetime time.Duration // Maximum connection lifetime (default: 5 minutes)
	ConnMaxIdleTime time.Duration // Maximum connection idle time (default: 10 minutes)
}

// Connect establishes a database connection using the provided configuration.
func Connect(cfg Config, log hclog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.DBName,
			sslMode,
		)
		dialector = postgres.Open(dsn)

	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		dialector = sqlite.Open(cfg.Path)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", cfg.Driver)
	}

	// Create GORM config with optional logger
	gormConfig := &gorm.Config{}
	if log != nil {
		gormConfig.Logger = NewGormLogger(log.Named("gorm"))
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 10
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = 25
		if cfg.Driver == DriverSQLite {
			// One writer at a time; concurrent sqlite writers fail with SQLITE_BUSY.
			maxOpenConns = 1
		}
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	if log != nil {
		log.Info("connected to database",
			"driver", cfg.Driver,
			"host", cfg.Host,
			"database", cfg.DBName,
			"path", cfg.Path,
			"max_idle_conns", maxIdleConns,
			"max_open_conns", maxOpenConns,
		)
	}

	return db, nil
}

// Migrate creates or updates the tables and unique indexes the identity
// subsystem relies on.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		return fmt.Errorf("error migrating database: %w", err)
	}
	return nil
}

// PoolStats holds database connection pool statistics.
type PoolStats struct {
	MaxOpenConnections int           // Maximum number of open connections to the database
	OpenConnections    int           // The number of established connections both in use and idle
	InUse              int           // The number of connections currently in use
	Idle               int           // The number of idle connections
	WaitCount          int64         // The total number of connections waited for
	WaitDuration       time.Duration // The total time blocked waiting for a new connection
}

// GetPoolStats returns connection pool statistics from a GORM DB instance.
func GetPoolStats(db *gorm.DB) (*PoolStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	stats := sqlDB.Stats()
	return &PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

// gormHclogAdapter adapts hclog.Logger to gorm.logger.Interface.
type gormHclogAdapter struct {
	logger hclog.Logger
	level  logger.LogLevel
}

// NewGormLogger creates a new GORM logger that uses hclog.
func NewGormLogger(log hclog.Logger) logger.Interface {
	return &gormHclogAdapter{
		logger: log,
		level:  logger.Warn,
	}
}

// LogMode sets the log level for GORM queries.
func (g *gormHclogAdapter) LogMode(level logger.LogLevel) logger.Interface {
	return &gormHclogAdapter{
		logger: g.logger,
		level:  level,
	}
}

func (g *gormHclogAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Info && g.logger != nil {
		g.logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (g *gormHclogAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Warn && g.logger != nil {
		g.logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (g *gormHclogAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Error && g.logger != nil {
		g.logger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL queries and execution time. Record-not-found is an
// expected outcome of lookups and is not logged as a failure.
func (g *gormHclogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent || g.logger == nil {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		g.logger.Error("database query failed",
			"error", err,
			"elapsed", elapsed,
			"rows", rows,
			"sql", sql,
		)
	case elapsed > 200*time.Millisecond && g.level >= logger.Warn:
		g.logger.Warn("slow database query",
			"elapsed", elapsed,
			"rows", rows,
			"sql", sql,
		)
	case g.level >= logger.Info:
		g.logger.Debug("database query",
			"elapsed", elapsed,
			"rows", rows,
			"sql", sql,
		)
	}
}
