package db

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"holdem-engine/internal/logger"
	"holdem-engine/internal/models"
)

// DB wraps the GORM database connection
type DB struct {
	*gorm.DB
}

// Config holds database connection configuration. Driver is "mysql" or
// "sqlite"; for sqlite only Path is used.
type Config struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Path     string
}

// DSN builds the MySQL data source name.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.Host + ":" + c.Port
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// New opens the configured database and migrates every record type plus
// any extra ones owned by other packages.
func New(cfg Config, extra ...interface{}) (*DB, error) {
	log := logger.With("db")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "mysql":
		dialector = gormmysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "memory":
		return NewMemory(cfg.DBName, extra...)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	gormDB, err := Open(dialector)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := gormDB.Migrate(extra...); err != nil {
		return nil, err
	}

	log.Info().Str("driver", dialector.Name()).Msg("database connected and migrated")
	return gormDB, nil
}

// Open wraps a dialector with the project's gorm settings.
func Open(dialector gorm.Dialector) (*DB, error) {
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(logger.With("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{gormDB}, nil
}

// Migrate creates or updates the schema of every record type.
func (d *DB) Migrate(extra ...interface{}) error {
	if err := d.AutoMigrate(append(models.All(), extra...)...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// NewMemory opens a private in-memory sqlite database and migrates it.
func NewMemory(name string, extra ...interface{}) (*DB, error) {
	gormDB, err := Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gormDB.Migrate(extra...); err != nil {
		return nil, err
	}
	return gormDB, nil
}
