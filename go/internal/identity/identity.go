// Package identity resolves the user behind an incoming websocket request.
// Sessions are issued elsewhere; this package only reads them.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	SessionCookie = "session"
	sessionPrefix = "session:"
	anonPrefix    = "Anon-"
)

// Identity is a resolved user. Anonymous users get a generated name.
type Identity struct {
	User      string
	Anonymous bool
}

// Anonymous returns a fresh anonymous identity.
func Anonymous() Identity {
	return Identity{
		User:      anonPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Anonymous: true,
	}
}

type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) Identity
}

// RedisResolver maps the session cookie to a username stored under
// session:<token>.
type RedisResolver struct {
	rdb *redis.Client
}

func NewRedisResolver(rdb *redis.Client) *RedisResolver {
	return &RedisResolver{rdb: rdb}
}

func (r *RedisResolver) Resolve(ctx context.Context, req *http.Request) Identity {
	cookie, err := req.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return Anonymous()
	}

	user, err := r.rdb.Get(ctx, sessionPrefix+cookie.Value).Result()
	if errors.Is(err, redis.Nil) || user == "" {
		return Anonymous()
	}
	if err != nil {
		log.Debug().Err(err).Msg("session lookup failed, continuing anonymously")
		return Anonymous()
	}
	return Identity{User: user}
}

// StaticResolver trusts the user query parameter. For development and tests.
type StaticResolver struct{}

func (StaticResolver) Resolve(_ context.Context, r *http.Request) Identity {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" || strings.HasPrefix(user, anonPrefix) {
		return Anonymous()
	}
	return Identity{User: user}
}
