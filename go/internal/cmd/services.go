package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/shuuro/go/internal/board/chess8"
	"github.com/mcdev12/shuuro/go/internal/config"
	"github.com/mcdev12/shuuro/go/internal/events"
	"github.com/mcdev12/shuuro/go/internal/gateway"
	"github.com/mcdev12/shuuro/go/internal/hub"
	"github.com/mcdev12/shuuro/go/internal/identity"
	"github.com/mcdev12/shuuro/go/internal/match"
)

type Services struct {
	Hub      *hub.Hub
	Registry *match.Registry
	Gateway  *gateway.Handler

	pool      *pgxpool.Pool
	redis     *redis.Client
	publisher events.Publisher
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up dependency chain
	// Store/bus → Registry → Hub observer → Dispatcher → Websocket handler
	s := &Services{}

	store, err := s.setupStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := s.setupPublisher(ctx, cfg); err != nil {
		s.closeBackends()
		return nil, err
	}

	resolver := s.setupResolver(ctx, cfg)

	clk := clockwork.NewRealClock()
	s.Hub = hub.New(cfg.Hub)
	s.Registry = match.NewRegistry(clk, cfg.MatchSettings(), store, s.publisher, gateway.NewNotifier(s.Hub), chess8.New())

	restored, err := s.Registry.LoadUnfinished(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to restore unfinished matches")
	} else {
		log.Info().Int("matches", restored).Msg("restored unfinished matches")
	}

	gatewayConfig := cfg.Gateway
	if len(gatewayConfig.AllowedOrigins) == 0 && !slices.Contains(cfg.Server.AllowedOrigins, "*") {
		gatewayConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	}
	s.Gateway = gateway.NewHandler(s.Hub, gateway.NewDispatcher(s.Registry, s.Hub, clk), resolver, gatewayConfig)

	return s, nil
}

func (s *Services) setupStore(ctx context.Context, cfg config.Config) (match.Store, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory match store, matches will not survive a restart")
		return match.NewMemoryStore(), nil
	}

	pool, err := setupDatabase(ctx)
	if err != nil {
		return nil, err
	}
	s.pool = pool

	store := match.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate match store: %w", err)
	}
	return store, nil
}

func (s *Services) setupPublisher(ctx context.Context, cfg config.Config) error {
	if cfg.NATS.URL == "" {
		log.Info().Msg("NATS_URL not set, match events go to the log")
		s.publisher = events.LogPublisher{}
		return nil
	}

	publisher, err := events.NewJetStreamPublisher(ctx, cfg.JetStream())
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	s.publisher = publisher
	return nil
}

func (s *Services) setupResolver(ctx context.Context, cfg config.Config) identity.Resolver {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("REDIS_ADDR not set, identities come from the user query parameter")
		return identity.StaticResolver{}
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := s.redis.Ping(ctx).Err(); err != nil {
		// sessions fall back to anonymous until redis is reachable
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
	}
	return identity.NewRedisResolver(s.redis)
}

// Close flushes live matches and releases backends. The gateway must be shut
// down first so no command races the final save.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Registry != nil {
		if err := s.Registry.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close registry: %w", err))
		}
	}
	if err := s.closeBackends(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Services) closeBackends() error {
	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close publisher: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}
