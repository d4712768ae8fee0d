// Package config loads server settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/shuuro/go/internal/events"
	"github.com/mcdev12/shuuro/go/internal/gateway"
	"github.com/mcdev12/shuuro/go/internal/hub"
	"github.com/mcdev12/shuuro/go/internal/match"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Store    string                   `yaml:"store"`
	Engine   EngineConfig             `yaml:"engine"`
	Variants map[string]VariantConfig `yaml:"variants"`
	Hub      hub.Config               `yaml:"hub"`
	Gateway  gateway.Config           `yaml:"gateway"`
	NATS     NATSConfig               `yaml:"nats"`
	Redis    RedisConfig              `yaml:"redis"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig tunes the match registry.
type EngineConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	QueueSize     int           `yaml:"queue_size"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
}

type VariantConfig struct {
	Family  string `yaml:"family"`
	Credits int    `yaml:"credits"`
}

// NATSConfig enables the event bus when URL is set.
type NATSConfig struct {
	URL        string `yaml:"url"`
	StreamName string `yaml:"stream_name"`
	Subject    string `yaml:"subject_prefix"`
}

// RedisConfig enables cookie sessions when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func Default() Config {
	settings := match.DefaultSettings()
	variants := make(map[string]VariantConfig, len(settings.Variants))
	for name, v := range settings.Variants {
		variants[name] = VariantConfig{Family: v.Family, Credits: v.Credits}
	}

	js := events.DefaultJetStreamConfig()
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StorePostgres,
		Engine: EngineConfig{
			PollInterval:  settings.PollInterval,
			SweepInterval: settings.SweepInterval,
			QueueSize:     settings.QueueSize,
			StoreTimeout:  settings.StoreTimeout,
		},
		Variants: variants,
		Hub:      hub.DefaultConfig(),
		Gateway:  gateway.DefaultConfig(),
		NATS: NATSConfig{
			StreamName: js.StreamName,
			Subject:    js.SubjectPrefix,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	default:
		// a variants section replaces the built-in table
		cfg.Variants = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
		if len(cfg.Variants) == 0 {
			cfg.Variants = Default().Variants
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Store = getEnv("STORE", c.Store)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Engine.PollInterval <= 0 {
		return errors.New("engine.poll_interval must be positive")
	}
	if c.Engine.SweepInterval <= 0 {
		return errors.New("engine.sweep_interval must be positive")
	}
	if c.Engine.StoreTimeout <= 0 {
		return errors.New("engine.store_timeout must be positive")
	}
	if c.Engine.QueueSize <= 0 {
		return errors.New("engine.queue_size must be positive")
	}
	for _, name := range c.Hub.Lobby.Variants {
		if _, ok := c.Variants[name]; !ok {
			return fmt.Errorf("lobby variant %q is not configured", name)
		}
	}
	for name, v := range c.Variants {
		if v.Family == "" || v.Credits <= 0 {
			return fmt.Errorf("variant %q needs a family and positive credits", name)
		}
	}
	return nil
}

// MatchSettings converts the engine section for the registry.
func (c Config) MatchSettings() match.Settings {
	variants := make(map[string]match.Variant, len(c.Variants))
	for name, v := range c.Variants {
		variants[name] = match.Variant{Name: name, Family: v.Family, Credits: v.Credits}
	}
	return match.Settings{
		Variants:      variants,
		PollInterval:  c.Engine.PollInterval,
		SweepInterval: c.Engine.SweepInterval,
		QueueSize:     c.Engine.QueueSize,
		StoreTimeout:  c.Engine.StoreTimeout,
	}
}

// JetStream returns the publisher settings for the configured NATS server.
func (c Config) JetStream() events.JetStreamConfig {
	js := events.DefaultJetStreamConfig()
	js.URL = c.NATS.URL
	js.StreamName = c.NATS.StreamName
	js.SubjectPrefix = c.NATS.Subject
	return js
}

// VariantNames lists the configured variants in order.
func (c Config) VariantNames() []string {
	names := make([]string, 0, len(c.Variants))
	for name := range c.Variants {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
