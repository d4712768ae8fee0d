package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestAnonymous(t *testing.T) {
	a, b := Anonymous(), Anonymous()
	assert.True(t, a.Anonymous)
	assert.True(t, strings.HasPrefix(a.User, "Anon-"))
	assert.Len(t, a.User, len("Anon-")+8)
	assert.NotEqual(t, a.User, b.User)
}

func TestStaticResolver(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?user=alice", nil)
	assert.Equal(t, Identity{User: "alice"}, StaticResolver{}.Resolve(context.Background(), r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, StaticResolver{}.Resolve(context.Background(), r).Anonymous)

	r = httptest.NewRequest(http.MethodGet, "/ws?user=Anon-deadbeef", nil)
	assert.True(t, StaticResolver{}.Resolve(context.Background(), r).Anonymous, "anonymous names cannot be claimed")
}

func TestRedisResolver_FallsBackToAnonymous(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	resolver := NewRedisResolver(rdb)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, resolver.Resolve(context.Background(), r).Anonymous, "no cookie")

	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "token"})
	assert.True(t, resolver.Resolve(context.Background(), r).Anonymous, "redis unreachable")
}
