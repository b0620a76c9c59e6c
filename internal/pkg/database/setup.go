package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var DB *gorm.DB

// GetDB returns the shared connection, nil before SetupDatabase ran.
func GetDB() *gorm.DB {
	return DB
}

// Driver reports the configured SQL dialect.
func Driver() string {
	d := strings.ToLower(strings.TrimSpace(env.GetEnv("DB_DRIVER", DriverPostgres)))
	if d == "mariadb" {
		return DriverMySQL
	}
	if d == "postgresql" || d == "pg" {
		return DriverPostgres
	}
	return d
}

// DSN builds the connection string for the configured driver.
func DSN() string {
	if Driver() == DriverMySQL {
		// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_NAME", ""),
		env.GetEnv("DB_PORT", "5432"),
		env.GetEnv("DB_SSLMODE", "disable"),
	)
}

func dialector() gorm.Dialector {
	if Driver() == DriverMySQL {
		return mysql.New(mysql.Config{
			DSN:                       DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		})
	}
	return postgres.New(postgres.Config{
		DSN:                  DSN(),
		PreferSimpleProtocol: true,
	})
}

// Open connects with retries. AutoMigrate is applied when DB_AUTO_MIGRATE is
// true; production schemas are managed by cmd/migrate.
func Open() (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	cfg := &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector(), cfg)
		if err == nil {
			if env.GetEnvBool("DB_AUTO_MIGRATE", env.IsDev()) {
				if mErr := AutoMigrate(db); mErr != nil {
					return nil, fmt.Errorf("auto migrate: %w", mErr)
				}
			}
			return db, nil
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// AutoMigrate creates or updates all application tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Mention{},
		&models.IngestionEvent{},
		&models.LeaderboardSnapshot{},
		&models.GeneratedImage{},
	)
}

func SetupDatabase() {
	db, err := Open()
	if err != nil {
		panic(err)
	}
	DB = db
}
