package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attribly/internal/config"
	"attribly/internal/store"
)

// ErrMigrationRefused is returned when migrations are requested against production.
var ErrMigrationRefused = errors.New("refusing to migrate the production analytics database")

// DBManager owns the connection pool to the analytics database.
type DBManager struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
}

// NewDBManager creates a manager for the configured database. Call Init to connect.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return &DBManager{cfg: cfg, logger: logger}
}

// NewDBManagerWithConnection wraps an already opened connection.
func NewDBManagerWithConnection(cfg *config.Config, logger *slog.Logger, db *gorm.DB) *DBManager {
	return &DBManager{cfg: cfg, logger: logger, db: db}
}

// Dialect picks the gorm driver for the configured database type.
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DatabaseType {
	case config.PostgresDatabase:
		return postgres.Open(cfg.DatabaseDSN()), nil
	case config.SQLiteDatabase:
		path := cfg.GetDatabasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return sqlite.Open(path + "?_busy_timeout=5000"), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
}

// Init opens the connection pool and verifies the database answers.
func (dm *DBManager) Init() error {
	if dm.db != nil {
		return nil
	}

	dialector, err := Dialect(dm.cfg)
	if err != nil {
		return err
	}

	logLevel := logger.Warn
	if dm.cfg.IsProduction() {
		logLevel = logger.Error
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", dm.cfg.DatabaseType, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(dm.cfg.GetMaxOpenConns())
	sqlDB.SetMaxIdleConns(dm.cfg.GetMaxIdleConns())
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to reach %s database: %w", dm.cfg.DatabaseType, err)
	}

	dm.db = db
	dm.logger.Info("Database connected",
		slog.String("type", dm.cfg.DatabaseType),
		slog.Int("max_open_conns", dm.cfg.GetMaxOpenConns()))
	return nil
}

// GetConnection returns the pool, or nil before Init.
func (dm *DBManager) GetConnection() *gorm.DB {
	return dm.db
}

func (dm *DBManager) Ping(ctx context.Context) error {
	if dm.db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (dm *DBManager) Close() error {
	if dm.db == nil {
		return nil
	}
	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	dm.db = nil
	return sqlDB.Close()
}

// MigrateDatabase creates the analytics relations on a development or test
// database. The production tables belong to the tracker and the CMS.
func (dm *DBManager) MigrateDatabase() error {
	if dm.cfg.IsProduction() {
		return ErrMigrationRefused
	}

	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(store.AllModels()...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}
