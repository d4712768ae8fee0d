package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/shuuro/go/internal/hub"
)

var errClientGone = errors.New("client disconnected")

// Conn pumps frames between one websocket and its hub client.
type Conn struct {
	ws         *websocket.Conn
	client     *hub.Client
	hub        *hub.Hub
	dispatcher *Dispatcher
	config     Config
}

func newConn(ws *websocket.Conn, client *hub.Client, h *hub.Hub, d *Dispatcher, config Config) *Conn {
	return &Conn{ws: ws, client: client, hub: h, dispatcher: d, config: config}
}

// Run blocks until either pump stops, then unregisters the client. Both
// pumps always stop together.
func (c *Conn) Run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.readPump(ctx)
	})
	g.Go(func() error {
		return c.writePump(ctx)
	})

	err := g.Wait()
	c.hub.Unregister(c.client)

	log.Info().
		Str("connection_id", c.client.ID).
		Str("user", c.client.User).
		AnErr("reason", err).
		Msg("websocket connection closed")
}

func (c *Conn) readPump(ctx context.Context) error {
	// unblocks ReadMessage when the write half gives up
	defer c.ws.Close()

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.client.ID).
					Msg("unexpected websocket close error")
			}
			return fmt.Errorf("failed to read message: %w", err)
		}
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		cmd, err := DecodeCommand(message)
		if err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", c.client.ID).
				Msg("dropping malformed frame")
			continue
		}
		c.dispatcher.Dispatch(ctx, c.client, cmd)
	}
}

func (c *Conn) writePump(ctx context.Context) error {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.writeClose()
			return ctx.Err()

		case <-c.client.Done():
			c.writeClose()
			return errClientGone

		case message := <-c.client.Send:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return fmt.Errorf("failed to write message: %w", err)
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("failed to send ping: %w", err)
			}
		}
	}
}

func (c *Conn) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteTimeout))
}
