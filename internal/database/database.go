package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fadilmartias/climate-tracker/internal/config"
	"github.com/fadilmartias/climate-tracker/internal/model"
)

// Open connects to the configured database and sizes the connection pool
// for the environment.
func Open(dbConfig *config.DBConfig, production bool) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	switch dbConfig.Driver {
	case config.DBDriverSQLite:
		// Foreign keys are off by default in SQLite; cascades need them.
		dialector = sqlite.Open(dbConfig.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	case config.DBDriverPostgres, "":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			dbConfig.Host,
			dbConfig.User,
			dbConfig.Password,
			dbConfig.Name,
			dbConfig.Port,
			dbConfig.SSLMode,
			dbConfig.TimeZone,
		)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", dbConfig.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("could not get database instance: %w", err)
	}

	switch {
	case dbConfig.Driver == config.DBDriverSQLite:
		// A single writer avoids SQLITE_BUSY between workers.
		sqlDB.SetMaxOpenConns(1)
	case production:
		sqlDB.SetMaxIdleConns(20)
		sqlDB.SetMaxOpenConns(200)
		sqlDB.SetConnMaxLifetime(time.Hour)
	default:
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.ExtractionJob{},
		&model.Community{},
		&model.Assessment{},
		&model.IndicatorScore{},
		&model.Strength{},
		&model.Recommendation{},
	); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
