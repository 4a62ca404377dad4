package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/sitehost/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the service name
// from the config.
func NewLogger(cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.Executor == "docker" && cfg.RuntimeContainer != "" {
		ctx = ctx.Str("runtime", cfg.RuntimeContainer)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
