package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/shuuro/go/internal/board/chess8"
	"github.com/mcdev12/shuuro/go/internal/events"
	"github.com/mcdev12/shuuro/go/internal/hub"
	"github.com/mcdev12/shuuro/go/internal/identity"
	"github.com/mcdev12/shuuro/go/internal/match"
	"github.com/mcdev12/shuuro/go/internal/models"
)

type testServer struct {
	url      string
	hub      *hub.Hub
	registry *match.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, clockwork.NewRealClock(), hub.DefaultConfig())
}

func newTestServerWith(t *testing.T, clk clockwork.Clock, hubConfig hub.Config) *testServer {
	t.Helper()
	h := hub.New(hubConfig)
	registry := match.NewRegistry(clk, match.DefaultSettings(), match.NewMemoryStore(), events.LogPublisher{}, NewNotifier(h), chess8.New())
	handler := NewHandler(h, NewDispatcher(registry, h, clk), identity.StaticResolver{}, DefaultConfig())
	srv := httptest.NewServer(handler)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, handler.Shutdown(ctx))
		srv.Close()
		assert.NoError(t, registry.Close(ctx))
	})

	return &testServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		hub:      h,
		registry: registry,
	}
}

func (s *testServer) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(s.url+"?user="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(frame))
}

// expect reads frames until one of type want arrives and returns its data.
func expect(t *testing.T, ws *websocket.Conn, want hub.EventType) json.RawMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env struct {
			Type hub.EventType   `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&env), "waiting for %s", want)
		if env.Type == want {
			return env.Data
		}
	}
}

// collect reads frames up to and including the first of type want and
// returns their types in order.
func collect(t *testing.T, ws *websocket.Conn, want hub.EventType) []hub.EventType {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var seen []hub.EventType
	for {
		var env struct {
			Type hub.EventType `json:"type"`
		}
		require.NoError(t, ws.ReadJSON(&env), "waiting for %s", want)
		seen = append(seen, env.Type)
		if env.Type == want {
			return seen
		}
	}
}

// startMatch has alice challenge as white and bob accept. It returns the
// match id once both players have the start event.
func startMatch(t *testing.T, alice, bob *websocket.Conn, minutes int) string {
	t.Helper()
	send(t, alice, map[string]any{
		"type": "challenge_create", "variant": "shuuro8", "minutes": minutes, "increment": 0, "color": "white",
	})
	expect(t, alice, hub.EventLobbyAdd)
	send(t, bob, map[string]any{"type": "challenge_accept", "username": "alice"})

	var start GameStatePayload
	require.NoError(t, json.Unmarshal(expect(t, alice, hub.EventGameStart), &start))
	expect(t, bob, hub.EventGameStart)
	require.Equal(t, [2]string{"alice", "bob"}, start.Players)
	return start.GameID
}

func TestGateway_ChallengeAcceptStartsMatch(t *testing.T) {
	srv := newTestServer(t)

	alice := srv.dial(t, "alice")
	send(t, alice, map[string]any{"type": "subscribe_room", "room": hub.RoomHome})
	expect(t, alice, hub.EventLobbyFull)
	send(t, alice, map[string]any{
		"type": "challenge_create", "variant": "shuuro8", "minutes": 5, "increment": 3, "color": "white",
	})
	expect(t, alice, hub.EventLobbyAdd)

	bob := srv.dial(t, "bob")
	send(t, bob, map[string]any{"type": "challenge_accept", "username": "alice"})

	var started [2]GameStatePayload
	for i, ws := range []*websocket.Conn{alice, bob} {
		require.NoError(t, json.Unmarshal(expect(t, ws, hub.EventGameStart), &started[i]))
	}
	assert.Equal(t, started[0], started[1])
	assert.Equal(t, [2]string{"alice", "bob"}, started[0].Players)
	assert.Equal(t, "shop", started[0].Stage)
	assert.Equal(t, Clocks{White: 300000, Black: 300000}, started[0].Clocks)
	assert.Nil(t, started[0].Hands, "armies are hidden while shopping")

	assert.Empty(t, srv.hub.Lobby().List())
	assert.Equal(t, 1, srv.registry.Count())

	// both sides confirm and the match moves on to deployment
	gameID := started[0].GameID
	send(t, alice, map[string]any{"type": "confirm", "game_id": gameID})
	send(t, bob, map[string]any{"type": "confirm", "game_id": gameID})
	for _, ws := range []*websocket.Conn{alice, bob} {
		var redirect RedirectPayload
		require.NoError(t, json.Unmarshal(expect(t, ws, hub.EventRedirectDeploy), &redirect))
		assert.Equal(t, "deploy", redirect.Stage)
	}

	send(t, bob, map[string]any{"type": "get_game", "game_id": gameID})
	var state GameStatePayload
	require.NoError(t, json.Unmarshal(expect(t, bob, hub.EventGameState), &state))
	require.NotNil(t, state.Hands)
	assert.Equal(t, [2]bool{true, true}, state.Confirmed)
}

func TestGateway_MalformedAndUnknownFramesAreIgnored(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "alice")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("garbage")))
	send(t, alice, map[string]any{"type": "rematch"})
	send(t, alice, map[string]any{"type": "resign", "game_id": "missing"})

	// the connection is still served
	send(t, alice, map[string]any{"type": "subscribe_room", "room": hub.RoomTV})
	var chat hub.ChatPayload
	require.NoError(t, json.Unmarshal(expect(t, alice, hub.EventChatFull), &chat))
	assert.Equal(t, hub.RoomTV, chat.Room)
}

func TestGateway_ChatDropsAnonymous(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "alice")
	carol := srv.dial(t, "carol")
	anon := srv.dial(t, "")

	for _, ws := range []*websocket.Conn{carol, anon} {
		send(t, ws, map[string]any{"type": "subscribe_room", "room": hub.RoomHome})
		expect(t, ws, hub.EventChatFull)
	}

	send(t, anon, map[string]any{"type": "chat_message", "room": hub.RoomHome, "message": "hello?"})
	send(t, alice, map[string]any{"type": "chat_message", "room": hub.RoomHome, "message": "  hi all "})

	var msg hub.ChatPayload
	require.NoError(t, json.Unmarshal(expect(t, carol, hub.EventChatMessage), &msg))
	require.NotNil(t, msg.Message)
	assert.Equal(t, "alice", msg.Message.User, "anonymous message was dropped")
	assert.Equal(t, "hi all", msg.Message.Message)
}

func TestGateway_DisconnectWithdrawsChallenge(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "alice")
	watcher := srv.dial(t, "carol")

	send(t, alice, map[string]any{
		"type": "challenge_create", "variant": "shuuro8", "minutes": 3, "increment": 0, "color": "random",
	})
	expect(t, watcher, hub.EventLobbyAdd)

	require.NoError(t, alice.Close())
	expect(t, watcher, hub.EventLobbyRemove)
	assert.Empty(t, srv.hub.Lobby().List())
}

func TestGateway_BuyReachesOnlyTheBuyer(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "alice")
	bob := srv.dial(t, "bob")
	carol := srv.dial(t, "carol")

	gameID := startMatch(t, alice, bob, 5)
	send(t, carol, map[string]any{"type": "subscribe_room", "room": gameID})
	expect(t, carol, hub.EventChatFull)

	send(t, alice, map[string]any{"type": "buy", "game_id": gameID, "game_move": "q"})
	var buy BuyPayload
	require.NoError(t, json.Unmarshal(expect(t, alice, hub.EventGameBuy), &buy))
	assert.Equal(t, "w:q", buy.Piece)
	assert.Equal(t, "KQ", buy.Hand)

	send(t, alice, map[string]any{"type": "confirm", "game_id": gameID})
	for _, ws := range []*websocket.Conn{bob, carol} {
		seen := collect(t, ws, hub.EventGameBuyConfirmed)
		assert.NotContains(t, seen, hub.EventGameBuy)
	}
}

func TestGateway_FightEndsOnTimeout(t *testing.T) {
	fc := clockwork.NewFakeClock()
	srv := newTestServerWith(t, fc, hub.DefaultConfig())
	alice := srv.dial(t, "alice")
	bob := srv.dial(t, "bob")
	carol := srv.dial(t, "carol")
	dave := srv.dial(t, "dave")

	send(t, dave, map[string]any{"type": "subscribe_room", "room": hub.RoomTV})
	expect(t, dave, hub.EventChatFull)

	gameID := startMatch(t, alice, bob, 1)
	expect(t, dave, hub.EventGameStart)
	send(t, carol, map[string]any{"type": "subscribe_room", "room": gameID})
	expect(t, carol, hub.EventChatFull)

	send(t, alice, map[string]any{"type": "buy", "game_id": gameID, "game_move": "r"})
	expect(t, alice, hub.EventGameBuy)
	send(t, bob, map[string]any{"type": "buy", "game_id": gameID, "game_move": "r"})
	expect(t, bob, hub.EventGameBuy)
	send(t, alice, map[string]any{"type": "confirm", "game_id": gameID})
	send(t, bob, map[string]any{"type": "confirm", "game_id": gameID})
	for _, ws := range []*websocket.Conn{alice, bob, carol} {
		expect(t, ws, hub.EventRedirectDeploy)
	}

	placements := []struct {
		ws   *websocket.Conn
		move string
	}{
		{alice, "K@e1"},
		{bob, "K@e8"},
		{alice, "R@a1"},
		{bob, "R@h8"},
	}
	for _, p := range placements {
		send(t, p.ws, map[string]any{"type": "place", "game_id": gameID, "game_move": p.move})
		for _, ws := range []*websocket.Conn{alice, bob} {
			var placed MovePayload
			require.NoError(t, json.Unmarshal(expect(t, ws, hub.EventGamePlace), &placed))
			assert.Equal(t, p.move, placed.Move)
		}
	}
	for _, ws := range []*websocket.Conn{alice, bob, carol} {
		var redirect RedirectPayload
		require.NoError(t, json.Unmarshal(expect(t, ws, hub.EventRedirectFight), &redirect))
		assert.Equal(t, "fight", redirect.Stage)
	}

	send(t, alice, map[string]any{"type": "play", "game_id": gameID, "game_move": "a1a5"})
	for _, ws := range []*websocket.Conn{alice, bob, carol, dave} {
		var played MovePayload
		require.NoError(t, json.Unmarshal(expect(t, ws, hub.EventGamePlay), &played))
		assert.Equal(t, "a1a5", played.Move)
		assert.Equal(t, models.Black, played.SideToMove)
	}

	send(t, bob, map[string]any{"type": "chat_message", "room": gameID, "message": "gl"})
	expect(t, carol, hub.EventChatMessage)
	require.Len(t, srv.hub.Chat().Log(gameID), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(2 * time.Minute)

	for _, ws := range []*websocket.Conn{alice, bob, carol} {
		var timeout SidePayload
		require.NoError(t, json.Unmarshal(expect(t, ws, hub.EventGameTimeout), &timeout))
		assert.Equal(t, models.Black, timeout.Side)

		var end EndPayload
		require.NoError(t, json.Unmarshal(expect(t, ws, hub.EventGameEnd), &end))
		assert.Equal(t, int(models.StatusLostOnTime), end.Status)
		assert.Equal(t, models.ResultWhite, end.Result)
	}
	assert.NotContains(t, collect(t, dave, hub.EventGameEnd), hub.EventGameTimeout)
	assert.Empty(t, srv.hub.Chat().Log(gameID))
	assert.Zero(t, srv.registry.Count())

	// the ended match does not time out again
	fc.Advance(2 * time.Minute)
	send(t, alice, map[string]any{"type": "get_game", "game_id": gameID})
	seen := collect(t, alice, hub.EventGameState)
	assert.NotContains(t, seen, hub.EventGameTimeout)
}

func TestGateway_ChatOnlyForKnownRooms(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "alice")
	carol := srv.dial(t, "carol")

	for _, room := range []string{"nowhere", hub.RoomHome} {
		send(t, carol, map[string]any{"type": "subscribe_room", "room": room})
		expect(t, carol, hub.EventChatFull)
	}

	send(t, alice, map[string]any{"type": "chat_message", "room": "nowhere", "message": "hello"})
	send(t, alice, map[string]any{"type": "chat_message", "room": hub.RoomHome, "message": "hi"})

	var msg hub.ChatPayload
	require.NoError(t, json.Unmarshal(expect(t, carol, hub.EventChatMessage), &msg))
	assert.Equal(t, hub.RoomHome, msg.Room)
	assert.Equal(t, 1, srv.hub.Stats().ChatRooms)
}

func TestGateway_FailedAcceptReopensChallenges(t *testing.T) {
	hubConfig := hub.DefaultConfig()
	// the lobby offers a variant the registry cannot start
	hubConfig.Lobby.Variants = append(hubConfig.Lobby.Variants, "shuuro12")
	srv := newTestServerWith(t, clockwork.NewRealClock(), hubConfig)
	alice := srv.dial(t, "alice")
	bob := srv.dial(t, "bob")

	send(t, alice, map[string]any{
		"type": "challenge_create", "variant": "shuuro12", "minutes": 5, "increment": 0, "color": "white",
	})
	expect(t, alice, hub.EventLobbyAdd)
	send(t, bob, map[string]any{
		"type": "challenge_create", "variant": "shuuro8", "minutes": 3, "increment": 0, "color": "black",
	})
	expect(t, bob, hub.EventLobbyAdd)
	expect(t, alice, hub.EventLobbyAdd)

	send(t, bob, map[string]any{"type": "challenge_accept", "username": "alice"})
	// commands on one connection run in order
	send(t, bob, map[string]any{"type": "subscribe_room", "room": hub.RoomHome})
	seen := collect(t, bob, hub.EventChatFull)
	assert.NotContains(t, seen, hub.EventLobbyRemove)
	assert.NotContains(t, seen, hub.EventGameStart)

	assert.Len(t, srv.hub.Lobby().List(), 2)
	assert.Zero(t, srv.registry.Count())
}
