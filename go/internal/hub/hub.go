// Package hub tracks connected clients, their rooms, the lobby and chat, and
// fans events out to them.
//
// Delivery to spectators and to All is at-most-once: a client whose buffer is
// full misses the event. Delivery to Me and to match players is reliable as
// far as the socket allows: a client that cannot keep up is disconnected and
// reconciles with get_game after reconnecting.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Well-known rooms.
const (
	RoomHome = "home"
	RoomTV   = "tv"
)

type Config struct {
	SendBuffer int         `yaml:"send_buffer"`
	Chat       ChatConfig  `yaml:"chat"`
	Lobby      LobbyConfig `yaml:"lobby"`
}

func DefaultConfig() Config {
	return Config{
		SendBuffer: 256,
		Chat:       DefaultChatConfig(),
		Lobby:      DefaultLobbyConfig(),
	}
}

// Client is one connected socket.
type Client struct {
	ID          string
	User        string
	Anonymous   bool
	ConnectedAt time.Time
	Send        chan []byte

	done      chan struct{}
	closeOnce sync.Once
	closeConn func()
}

// NewClient creates a client. closeConn tears down the underlying connection
// and may be nil.
func NewClient(user string, anonymous bool, buffer int, closeConn func()) *Client {
	return &Client{
		ID:          uuid.NewString(),
		User:        user,
		Anonymous:   anonymous,
		ConnectedAt: time.Now(),
		Send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		closeConn:   closeConn,
	}
}

// Done is closed once the client has been disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the client disconnected and closes its connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.closeConn != nil {
			c.closeConn()
		}
	})
}

type audienceKind int

const (
	toMe audienceKind = iota
	toAll
	toSpectators
	toPlayers
	toSpectatorsAndPlayers
)

// Audience selects the recipients of an event.
type Audience struct {
	kind    audienceKind
	client  *Client
	room    string
	players [2]string
}

func Me(c *Client) Audience {
	return Audience{kind: toMe, client: c}
}

func All() Audience {
	return Audience{kind: toAll}
}

func Spectators(room string) Audience {
	return Audience{kind: toSpectators, room: room}
}

func Players(pair [2]string) Audience {
	return Audience{kind: toPlayers, players: pair}
}

// SpectatorsAndPlayers reaches the room and both players, once per connection.
func SpectatorsAndPlayers(room string, pair [2]string) Audience {
	return Audience{kind: toSpectatorsAndPlayers, room: room, players: pair}
}

// Hub is the process-wide registry of connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[string]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	// joined is the reverse index of rooms.
	joined map[*Client]map[string]struct{}

	config Config
	lobby  *Lobby
	chat   *Chat
}

func New(config Config) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		users:   make(map[string]map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		joined:  make(map[*Client]map[string]struct{}),
		config:  config,
		lobby:   NewLobby(config.Lobby),
		chat:    NewChat(config.Chat),
	}
}

func (h *Hub) Lobby() *Lobby { return h.lobby }

func (h *Hub) Chat() *Chat { return h.chat }

// SendBuffer is the per-client buffer size new clients should use.
func (h *Hub) SendBuffer() int { return h.config.SendBuffer }

// Register adds a client and announces the new player count.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.users[c.User] == nil {
		h.users[c.User] = make(map[*Client]struct{})
	}
	h.users[c.User][c] = struct{}{}
	h.joined[c] = make(map[string]struct{})
	players := len(h.users)
	h.mu.Unlock()

	log.Debug().
		Str("connection_id", c.ID).
		Str("user", c.User).
		Int("active_players", players).
		Msg("client registered")

	h.Send(All(), Event{Type: EventPlayersCount, Data: CountPayload{Count: players}})
}

// Unregister removes a client from every room. When it was the user's last
// connection, the user's open challenge is withdrawn.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range h.joined[c] {
		h.leaveLocked(c, room)
	}
	delete(h.joined, c)

	lastConnection := false
	if conns := h.users[c.User]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.User)
			lastConnection = true
		}
	}
	players := len(h.users)
	h.mu.Unlock()

	c.Close()
	log.Debug().
		Str("connection_id", c.ID).
		Str("user", c.User).
		Int("active_players", players).
		Msg("client unregistered")

	if lastConnection {
		if req, ok := h.lobby.Withdraw(c.User); ok {
			h.Send(All(), Event{Type: EventLobbyRemove, Data: req})
		}
	}
	h.Send(All(), Event{Type: EventPlayersCount, Data: CountPayload{Count: players}})
}

// Join subscribes c to room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.joined[c]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	rooms[room] = struct{}{}
}

// Leave unsubscribes c from room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
	delete(h.joined[c], room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// ActivePlayers returns the number of distinct connected users.
func (h *Hub) ActivePlayers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// Stats summarizes the hub for diagnostics.
type Stats struct {
	Connections int `json:"connections"`
	Players     int `json:"players"`
	Rooms       int `json:"rooms"`
	Challenges  int `json:"challenges"`
	ChatRooms   int `json:"chat_rooms"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	s := Stats{Connections: len(h.clients), Players: len(h.users), Rooms: len(h.rooms)}
	h.mu.RUnlock()
	s.Challenges = len(h.lobby.List())
	s.ChatRooms = h.chat.Rooms()
	return s
}

// Send delivers event to the audience.
func (h *Hub) Send(aud Audience, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event")
		return
	}

	targets := h.resolve(aud)
	for c, reliable := range targets {
		h.deliver(c, data, reliable)
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Int("connections", len(targets)).
		Msg("event sent")
}

// resolve maps every recipient to whether delivery to it must be reliable.
func (h *Hub) resolve(aud Audience) map[*Client]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)
	switch aud.kind {
	case toMe:
		if _, ok := h.clients[aud.client]; ok {
			targets[aud.client] = true
		}
	case toAll:
		for c := range h.clients {
			targets[c] = false
		}
	case toSpectators:
		for c := range h.rooms[aud.room] {
			targets[c] = false
		}
	case toPlayers:
		h.addPlayersLocked(targets, aud.players)
	case toSpectatorsAndPlayers:
		for c := range h.rooms[aud.room] {
			targets[c] = false
		}
		h.addPlayersLocked(targets, aud.players)
	}
	return targets
}

func (h *Hub) addPlayersLocked(targets map[*Client]bool, pair [2]string) {
	for _, user := range pair {
		for c := range h.users[user] {
			targets[c] = true
		}
	}
}

func (h *Hub) deliver(c *Client, data []byte, reliable bool) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.Send <- data:
	default:
		if !reliable {
			log.Debug().Str("connection_id", c.ID).Msg("send buffer full, dropping event")
			return
		}
		log.Warn().
			Str("connection_id", c.ID).
			Str("user", c.User).
			Msg("send buffer full, closing connection")
		h.Unregister(c)
	}
}
