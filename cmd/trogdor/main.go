package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/trogdorcult/burninator/app/controllers"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/database"
	"github.com/trogdorcult/burninator/internal/pkg/env"
	"github.com/trogdorcult/burninator/internal/pkg/logging"
	"github.com/trogdorcult/burninator/internal/pkg/router"
	"github.com/trogdorcult/burninator/internal/pkg/services"
)

func main() {
	app, svc := NewApplication()
	svc.Jobs.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down")
	svc.Jobs.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown: %v", err)
	}
}

func NewApplication() (*fiber.App, *services.Services) {
	env.SetupEnvFile()
	logOut := logging.Setup()
	database.SetupDatabase()
	cache.SetupCache()

	svc, err := services.New(context.Background(), database.GetDB(), cache.Default(), cache.GetClient())
	if err != nil {
		log.Fatalf("[Server] Wiring services: %v", err)
	}

	// Define possible base paths
	basePaths := []string{
		"./",     // Current directory
		"../../", // From cmd/trogdor to project root
	}
	basePath := "./"
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		AppName:   "burninator",
		BodyLimit: 1 << 20,
		// Behind a proxy the limiter keys on the forwarded address.
		ProxyHeader: env.GetEnv("PROXY_HEADER", ""),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New(logger.Config{Output: logOut}))

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
		Title:    "Cult of Trogdor API",
	}))

	api := &controllers.API{
		Accounts:      svc.Repos.Account,
		Mentions:      svc.Repos.Mention,
		Nonces:        svc.Nonces,
		Auth:          svc.Auth,
		Tokens:        svc.Tokens,
		Pipeline:      svc.Pipeline,
		Source:        svc.Twitter,
		Pull:          svc.Pull,
		WebhookSecret: env.GetEnv("TWITTER_WEBHOOK_SECRET", ""),
		Leaderboard:   svc.Leaderboard,
		Twitter:       svc.Twitter,
		Generator:     svc.Images,
		Stats:         svc.Stats,
		Cache:         svc.Cache,
	}

	// ROUTER
	router.InstallRouter(app, router.Config{
		API:                 api,
		Tokens:              svc.Tokens,
		CronSecret:          env.GetEnv("CRON_SECRET", ""),
		MetricsUser:         env.GetEnv("METRICS_USER", "metrics"),
		MetricsPasswordHash: env.GetEnv("METRICS_PASSWORD_HASH", ""),
		RateLimit:           env.GetEnvInt("API_RATE_LIMIT", 120),
	})

	return app, svc
}
