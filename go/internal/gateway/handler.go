// Package gateway connects websocket clients to the match registry and the
// broadcast hub.
package gateway

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/shuuro/go/internal/hub"
	"github.com/mcdev12/shuuro/go/internal/identity"
)

// Config holds websocket connection settings.
type Config struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	// AllowedOrigins restricts the Origin header. Empty allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Handler upgrades /ws requests and runs one Conn per socket.
type Handler struct {
	hub        *hub.Hub
	dispatcher *Dispatcher
	resolver   identity.Resolver
	config     Config
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

func NewHandler(h *hub.Hub, d *Dispatcher, resolver identity.Resolver, config Config) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	handler := &Handler{
		hub:        h,
		dispatcher: d,
		resolver:   resolver,
		config:     config,
		ctx:        ctx,
		cancel:     cancel,
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     handler.checkOrigin,
	}
	return handler
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.config.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeHTTP handles a websocket upgrade and blocks for the connection's
// lifetime.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	id := h.resolver.Resolve(r.Context(), r)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		log.Error().Err(err).Str("user", id.User).Msg("failed to upgrade websocket connection")
		return
	}

	client := hub.NewClient(id.User, id.Anonymous, h.hub.SendBuffer(), func() { ws.Close() })
	h.hub.Register(client)

	log.Info().
		Str("connection_id", client.ID).
		Str("user", client.User).
		Bool("anonymous", client.Anonymous).
		Msg("websocket connection established")

	h.conns.Add(1)
	defer h.conns.Done()
	newConn(ws, client, h.hub, h.dispatcher, h.config).Run(h.ctx)
}

// Shutdown closes every open connection and waits for them to finish, or for
// ctx to end.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
