package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, []string{"shuuro8", "shuuro8-lite"}, cfg.VariantNames())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
store: memory
engine:
  poll_interval: 500ms
variants:
  blitz8:
    family: chess8
    credits: 120
hub:
  chat:
    max_length: 50
  lobby:
    variants: [blitz8]
    minutes: [1, 2]
    increments: [0]
gateway:
  ping_interval: 15s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.PollInterval)
	assert.Equal(t, time.Minute, cfg.Engine.SweepInterval, "unset fields keep their default")
	assert.Equal(t, 50, cfg.Hub.Chat.MaxLength)
	assert.Equal(t, 5, cfg.Hub.Chat.MaxPerUser)
	assert.Equal(t, []int{1, 2}, cfg.Hub.Lobby.Minutes)
	assert.Equal(t, 15*time.Second, cfg.Gateway.PingInterval)

	settings := cfg.MatchSettings()
	require.Len(t, settings.Variants, 1, "a variants section replaces the built-in table")
	assert.Equal(t, "chess8", settings.Variants["blitz8"].Family)
	assert.Equal(t, "blitz8", settings.Variants["blitz8"].Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE", "memory")
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)

	js := cfg.JetStream()
	assert.Equal(t, "nats://bus:4222", js.URL)
	assert.Equal(t, "MATCH_EVENTS", js.StreamName)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"store":          "store: mongo\n",
		"lobby variant":  "hub:\n  lobby:\n    variants: [shuuro12]\n",
		"credits":        "variants:\n  shuuro8:\n    family: chess8\n    credits: 0\n",
		"poll interval":  "engine:\n  poll_interval: 0s\n",
		"sweep interval": "engine:\n  sweep_interval: 0s\n",
		"store timeout":  "engine:\n  store_timeout: -1s\n",
		"queue size":     "engine:\n  queue_size: 0\n",
		"yaml":           "engine: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
