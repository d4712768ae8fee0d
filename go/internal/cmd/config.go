package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/shuuro/go/internal/config"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogging configures the global logger from LOG_FORMAT and LOG_LEVEL.
func setupLogging() {
	if strings.EqualFold(getEnv("LOG_FORMAT", "console"), "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func loadConfig() (config.Config, error) {
	path := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	log.Info().
		Str("path", path).
		Str("store", cfg.Store).
		Strs("variants", cfg.VariantNames()).
		Bool("nats", cfg.NATS.URL != "").
		Bool("redis", cfg.Redis.Addr != "").
		Msg("configuration loaded")
	return cfg, nil
}
