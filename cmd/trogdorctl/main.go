// Command trogdorctl runs the operational tasks of the Cult of Trogdor
// backend from a shell or an external scheduler.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/database"
	"github.com/trogdorcult/burninator/internal/pkg/env"
	"github.com/trogdorcult/burninator/internal/pkg/logging"
	"github.com/trogdorcult/burninator/internal/pkg/services"
)

func main() {
	root := NewRootCommand(loadRuntime)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadRuntime connects to the database and cache the way the server does.
func loadRuntime(ctx context.Context) (*Runtime, error) {
	env.SetupEnvFile()
	logging.Setup()
	log.SetLevel(log.LevelWarn)

	db, err := database.Open()
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	cache.SetupCache()
	svc, err := services.New(ctx, db, cache.Default(), cache.GetClient())
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Pipeline:    svc.Pipeline,
		Source:      svc.Twitter,
		Pull:        svc.Pull,
		Leaderboard: svc.Leaderboard,
		Accounts:    svc.Repos.Account,
		Tables:      migratorTables{db: db},
		Jobs:        svc.Jobs.Queue(),
	}, nil
}

type migratorTables struct{ db *gorm.DB }

func (m migratorTables) HasTable(name string) bool {
	return m.db.Migrator().HasTable(name)
}
