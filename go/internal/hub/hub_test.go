package hub

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/shuuro/go/internal/models"
)

type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// drain returns every queued event type for c.
func drain(t *testing.T, c *Client) []EventType {
	t.Helper()
	var out []EventType
	for {
		select {
		case raw := <-c.Send:
			var env envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			out = append(out, env.Type)
		default:
			return out
		}
	}
}

func count(types []EventType, want EventType) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}

func newTestClient(h *Hub, user string, buffer int) (*Client, *atomic.Int32) {
	closed := &atomic.Int32{}
	c := NewClient(user, strings.HasPrefix(user, "Anon-"), buffer, func() { closed.Add(1) })
	h.Register(c)
	return c, closed
}

func TestSend_SpectatorsAndPlayersDeduplicates(t *testing.T) {
	h := New(DefaultConfig())
	alice, _ := newTestClient(h, "alice", 16)
	bob, _ := newTestClient(h, "bob", 16)
	carol, _ := newTestClient(h, "carol", 16)
	dave, _ := newTestClient(h, "dave", 16)

	h.Join(alice, "m1")
	h.Join(carol, "m1")
	for _, c := range []*Client{alice, bob, carol, dave} {
		drain(t, c)
	}

	h.Send(SpectatorsAndPlayers("m1", [2]string{"alice", "bob"}), Event{Type: EventGamePlay})

	assert.Equal(t, 1, count(drain(t, alice), EventGamePlay), "player watching own match gets one copy")
	assert.Equal(t, 1, count(drain(t, bob), EventGamePlay))
	assert.Equal(t, 1, count(drain(t, carol), EventGamePlay))
	assert.Empty(t, drain(t, dave))
}

func TestSend_AudienceModes(t *testing.T) {
	h := New(DefaultConfig())
	alice, _ := newTestClient(h, "alice", 16)
	bob, _ := newTestClient(h, "bob", 16)
	h.Join(bob, RoomTV)
	drain(t, alice)
	drain(t, bob)

	h.Send(Me(alice), Event{Type: EventGameHand})
	assert.Equal(t, []EventType{EventGameHand}, drain(t, alice))
	assert.Empty(t, drain(t, bob))

	h.Send(Spectators(RoomTV), Event{Type: EventGameStart})
	assert.Empty(t, drain(t, alice))
	assert.Equal(t, []EventType{EventGameStart}, drain(t, bob))

	h.Send(Players([2]string{"alice", "nobody"}), Event{Type: EventGameState})
	assert.Equal(t, []EventType{EventGameState}, drain(t, alice))

	h.Send(All(), Event{Type: EventGamesCount, Data: CountPayload{Count: 3}})
	assert.Equal(t, []EventType{EventGamesCount}, drain(t, alice))
	assert.Equal(t, []EventType{EventGamesCount}, drain(t, bob))
}

func TestSend_SlowSpectatorDropsSlowPlayerDisconnects(t *testing.T) {
	h := New(DefaultConfig())
	watcher, watcherClosed := newTestClient(h, "carol", 1)
	player, playerClosed := newTestClient(h, "alice", 1)
	h.Join(watcher, "m1")

	// both buffers are now holding a player-count event
	h.Send(Spectators("m1"), Event{Type: EventGamePlay})
	assert.Zero(t, watcherClosed.Load(), "spectators just miss the event")
	assert.Equal(t, 2, h.Stats().Connections)

	h.Send(Players([2]string{"alice", "bob"}), Event{Type: EventGamePlay})
	assert.Equal(t, int32(1), playerClosed.Load())
	assert.Equal(t, 1, h.Stats().Connections)
	select {
	case <-player.Done():
	default:
		t.Fatal("slow player should be disconnected")
	}
}

func TestUnregister_WithdrawsChallengeOnLastConnection(t *testing.T) {
	h := New(DefaultConfig())
	first, _ := newTestClient(h, "alice", 16)
	second, _ := newTestClient(h, "alice", 16)
	observer, _ := newTestClient(h, "bob", 16)

	require.NoError(t, h.Lobby().Add(models.ChallengeRequest{
		Username: "alice", Variant: "shuuro8", Minutes: 5, Increment: 3, Color: models.ColorRandom,
	}))
	drain(t, observer)

	h.Unregister(first)
	assert.Len(t, h.Lobby().List(), 1, "alice is still connected")
	assert.Zero(t, count(drain(t, observer), EventLobbyRemove))

	h.Unregister(second)
	assert.Empty(t, h.Lobby().List())
	events := drain(t, observer)
	assert.Equal(t, 1, count(events, EventLobbyRemove))
	assert.Equal(t, 1, count(events, EventPlayersCount))
	assert.Equal(t, 1, h.ActivePlayers())
}

func TestUnregister_LeavesRooms(t *testing.T) {
	h := New(DefaultConfig())
	c, _ := newTestClient(h, "alice", 16)
	h.Join(c, "m1")
	h.Join(c, RoomHome)
	assert.Equal(t, 2, h.Stats().Rooms)

	h.Unregister(c)
	assert.Equal(t, Stats{}, h.Stats())

	// a second unregister is a no-op
	h.Unregister(c)
}

func TestChat_LengthCapDropsMessage(t *testing.T) {
	chat := NewChat(DefaultChatConfig())
	now := time.Now()

	_, ok := chat.Add("m1", "alice", false, strings.Repeat("a", 101), now)
	assert.False(t, ok)
	assert.Empty(t, chat.Log("m1"), "room log unchanged")

	msg, ok := chat.Add("m1", "alice", false, strings.Repeat("é", 100), now)
	assert.True(t, ok, "length is counted in characters")
	assert.Equal(t, "alice", msg.User)
	assert.Len(t, chat.Log("m1"), 1)
}

func TestChat_PerUserCapAndAnonymous(t *testing.T) {
	chat := NewChat(ChatConfig{MaxLength: 100, MaxPerUser: 2, LogSize: 3})
	now := time.Now()

	_, ok := chat.Add("home", "Anon-1234abcd", true, "hi", now)
	assert.False(t, ok)
	_, ok = chat.Add("home", "alice", false, "   ", now)
	assert.False(t, ok)

	for i := 0; i < 2; i++ {
		_, ok = chat.Add("home", "alice", false, "hello", now)
		require.True(t, ok)
	}
	_, ok = chat.Add("home", "alice", false, "again", now)
	assert.False(t, ok, "per-user cap reached")

	_, ok = chat.Add("home", "bob", false, "hey", now)
	require.True(t, ok)
	_, ok = chat.Add("home", "bob", false, "hey hey", now)
	require.True(t, ok)

	messages := chat.Log("home")
	require.Len(t, messages, 3, "log is bounded")
	assert.Equal(t, "alice", messages[0].User)

	// the oldest alice entry fell off, so she may talk again
	_, ok = chat.Add("home", "alice", false, "back", now)
	assert.True(t, ok)

	chat.Clear("home")
	assert.Empty(t, chat.Log("home"))
}

func TestLobby_Validation(t *testing.T) {
	l := NewLobby(DefaultLobbyConfig())
	valid := models.ChallengeRequest{Username: "alice", Variant: "shuuro8", Minutes: 5, Increment: 3, Color: models.ColorWhite}

	cases := map[string]func(r *models.ChallengeRequest){
		"variant":   func(r *models.ChallengeRequest) { r.Variant = "shogi" },
		"minutes":   func(r *models.ChallengeRequest) { r.Minutes = 7 },
		"increment": func(r *models.ChallengeRequest) { r.Increment = 4 },
		"color":     func(r *models.ChallengeRequest) { r.Color = "green" },
		"user":      func(r *models.ChallengeRequest) { r.Username = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			assert.ErrorIs(t, l.Add(req), ErrInvalidChallenge)
		})
	}
	assert.Empty(t, l.List())

	require.NoError(t, l.Add(valid))
	assert.ErrorIs(t, l.Add(valid), ErrChallengeExists)
}

func TestLobby_Accept(t *testing.T) {
	l := NewLobby(DefaultLobbyConfig())
	base := time.Now()
	require.NoError(t, l.Add(models.ChallengeRequest{Username: "alice", Variant: "shuuro8", Minutes: 3, Color: models.ColorRandom, CreatedAt: base}))
	require.NoError(t, l.Add(models.ChallengeRequest{Username: "bob", Variant: "shuuro8-lite", Minutes: 1, Color: models.ColorBlack, CreatedAt: base.Add(time.Second)}))

	list := l.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)

	_, _, ok := l.Accept("alice", "alice")
	assert.False(t, ok, "own challenge")

	req, withdrawn, ok := l.Accept("alice", "bob")
	require.True(t, ok)
	require.NotNil(t, withdrawn)
	assert.Equal(t, "bob", withdrawn.Username)
	assert.Equal(t, "shuuro8", req.Variant)
	assert.Empty(t, l.List())

	_, _, ok = l.Accept("alice", "carol")
	assert.False(t, ok)
}
