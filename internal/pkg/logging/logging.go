package logging

import (
	"io"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/trogdorcult/burninator/internal/pkg/env"
)

// Setup configures the fiber logger level and, when LOG_FILE is set, mirrors
// output into a size-rotated file.
func Setup() io.Writer {
	level := strings.ToLower(env.GetEnv("LOG_LEVEL", "info"))
	switch level {
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "warn":
		log.SetLevel(log.LevelWarn)
	case "error":
		log.SetLevel(log.LevelError)
	default:
		log.SetLevel(log.LevelInfo)
	}

	var out io.Writer = os.Stdout
	if path := strings.TrimSpace(env.GetEnv("LOG_FILE", "")); path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    env.GetEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: env.GetEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     env.GetEnvInt("LOG_MAX_AGE_DAYS", 14),
			Compress:   true,
		})
	}
	log.SetOutput(out)
	return out
}
