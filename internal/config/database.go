package config

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"imaging-archive-service/internal/domain/entities"
)

// OpenDatabase connects to the configured store. SQL statements are logged
// through logger at warn level and above.
func OpenDatabase(cfg DatabaseConfig, logger logrus.FieldLogger) (*gorm.DB, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.MaxOpenConns != 0 && cfg.MaxOpenConns < MinOpenConns {
		return nil, fmt.Errorf("max_open_conns %d: need 0 or at least %d", cfg.MaxOpenConns, MinOpenConns)
	}
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		sqlDB, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	logger.WithField("driver", cfg.Driver).Debug("database opened")
	return db, nil
}

// Migrate creates or updates the archive tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(entities.Models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
