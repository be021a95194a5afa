package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Ananth-NQI/whatsapp-relay/internal/config"
	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
)

// Connect opens the connection pool for the configured driver. The pool is
// process-wide: open it once at startup and close it on shutdown.
func Connect(cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dsn, err := SQLiteDSN(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Infof("Connecting to SQLite database at %s", cfg.SQLitePath)
		dialector = sqlite.Open(dsn)
	default:
		dsn := PostgresDSN(cfg)
		if cfg.InstanceConnectionName != "" {
			log.Infof("Connecting to Cloud SQL via socket: %s", cfg.InstanceConnectionName)
		} else {
			log.Info("Connecting to PostgreSQL")
		}
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: pool: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	log.Info("✅ Database connected successfully!")
	return db, nil
}

// PostgresDSN builds the connection string. DATABASE_URL wins; otherwise
// Cloud Run connects through the Cloud SQL unix socket and local
// development over TCP.
func PostgresDSN(cfg config.DatabaseConfig) string {
	if strings.TrimSpace(cfg.URL) != "" {
		return strings.TrimSpace(cfg.URL)
	}
	if cfg.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, cfg.User, cfg.Password, cfg.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
}

// SQLiteDSN makes sure the parent directory exists and enables the busy
// timeout and foreign keys.
func SQLiteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("database: sqlite path is empty")
	}
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("database: create sqlite dir: %w", err)
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on", nil
}

// Migrate creates or updates the conversations and messages tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Conversation{}, &models.Message{}); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// Close releases the pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
