package dbconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "not-a-port")
	t.Setenv("DB_PASSWORD", "p@ss/word")
	t.Setenv("DB_MAX_CONNS", "4")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "db", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "shuuro", cfg.Database)
	assert.Equal(t, "postgres://postgres:p%40ss%2Fword@db:5432/shuuro?sslmode=disable", cfg.DSN())

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(4), pc.MaxConns)
	assert.Equal(t, 30*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "p@ss/word", pc.ConnConfig.Password)
}
