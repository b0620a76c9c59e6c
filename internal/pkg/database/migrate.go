package database

import (
	"fmt"
	"net/url"

	"github.com/trogdorcult/burninator/internal/pkg/env"
)

// MigrationURL is the golang-migrate database URL for the configured driver.
func MigrationURL() string {
	user := url.QueryEscape(env.GetEnv("DB_USER", ""))
	pass := url.QueryEscape(env.GetEnv("DB_PASSWORD", ""))
	host := env.GetEnv("DB_HOST", "127.0.0.1")
	name := env.GetEnv("DB_NAME", "")

	if Driver() == DriverMySQL {
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true&parseTime=true",
			user, pass, host, env.GetEnv("DB_PORT", "3306"), name)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, pass, host, env.GetEnv("DB_PORT", "5432"), name, env.GetEnv("DB_SSLMODE", "disable"))
}

// MigrationSource points at the SQL files for the configured driver.
func MigrationSource(dir string) string {
	if dir == "" {
		dir = "migrations"
	}
	return "file://" + dir + "/" + Driver()
}

// Tables lists every table the application expects.
var Tables = []string{"accounts", "mentions", "ingestion_events", "leaderboard_snapshots", "generated_images"}
