package db

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"catalog/internal/config"
	"catalog/internal/models"
)

// Open открывает соединение с БД и подключает плагины (например, синхронизацию картинок)
func Open(cfg config.Database, logger zerolog.Logger, plugins ...gorm.Plugin) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}

	dbLogger := logger.With().Str("component", "gorm").Logger()
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(&dbLogger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}
	for _, p := range plugins {
		if err := db.Use(p); err != nil {
			return nil, errors.Wrapf(err, "register plugin %s", p.Name())
		}
	}
	return db, nil
}

// Migrate создаёт/обновляет таблицы
func Migrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(&models.Product{}), "auto migrate")
}
