package gateway

import (
	"context"
	"math/rand/v2"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/shuuro/go/internal/hub"
	"github.com/mcdev12/shuuro/go/internal/match"
	"github.com/mcdev12/shuuro/go/internal/models"
)

// Dispatcher routes decoded commands to the registry and the hub.
type Dispatcher struct {
	registry *match.Registry
	hub      *hub.Hub
	clock    clockwork.Clock
}

func NewDispatcher(registry *match.Registry, h *hub.Hub, clk clockwork.Clock) *Dispatcher {
	return &Dispatcher{registry: registry, hub: h, clock: clk}
}

// Dispatch executes cmd on behalf of c. Rejected commands are dropped; the
// client learns the outcome from the events it does or does not receive.
func (d *Dispatcher) Dispatch(ctx context.Context, c *hub.Client, cmd Command) {
	var accepted bool
	switch cmd := cmd.(type) {
	case Buy:
		accepted = d.withSeat(c, cmd.GameID, func(s *match.Session, side models.Side) bool {
			_, ok := s.Buy(side, cmd.Piece)
			return ok
		})
	case Confirm:
		accepted = d.withSeat(c, cmd.GameID, func(s *match.Session, side models.Side) bool {
			_, ok := s.Confirm(side)
			return ok
		})
	case Place:
		accepted = d.withSeat(c, cmd.GameID, func(s *match.Session, side models.Side) bool {
			_, ok := s.Place(side, cmd.Move)
			return ok
		})
	case Play:
		accepted = d.withSeat(c, cmd.GameID, func(s *match.Session, side models.Side) bool {
			_, ok := s.Play(side, cmd.Move)
			return ok
		})
	case Resign:
		accepted = d.withSeat(c, cmd.GameID, func(s *match.Session, side models.Side) bool {
			_, ok := s.Resign(side)
			return ok
		})
	case DrawOffer:
		accepted = d.withSeat(c, cmd.GameID, func(s *match.Session, side models.Side) bool {
			_, ok := s.OfferDraw(side)
			return ok
		})
	case GetGame:
		accepted = d.getGame(ctx, c, cmd.GameID)
	case GetHand:
		accepted = d.withSeat(c, cmd.GameID, func(s *match.Session, side models.Side) bool {
			hand, credits := s.Hand(side)
			d.hub.Send(hub.Me(c), hub.Event{Type: hub.EventGameHand, Data: HandPayload{
				GameID: cmd.GameID, Side: side, Hand: hand, Credits: credits,
			}})
			return true
		})
	case GetConfirmed:
		accepted = d.withSeat(c, cmd.GameID, func(s *match.Session, side models.Side) bool {
			d.hub.Send(hub.Me(c), hub.Event{Type: hub.EventGameConfirmed, Data: ConfirmedPayload{
				GameID: cmd.GameID, Side: side, Confirmed: s.Confirmed(), Clocks: clocksOf(s.Clocks()),
			}})
			return true
		})
	case ChatMessage:
		accepted = d.chat(c, cmd)
	case ChallengeCreate:
		accepted = d.createChallenge(c, cmd)
	case ChallengeAccept:
		accepted = d.acceptChallenge(ctx, c, cmd)
	case ChallengeWithdraw:
		var req models.ChallengeRequest
		if req, accepted = d.hub.Lobby().Withdraw(c.User); accepted {
			d.hub.Send(hub.All(), hub.Event{Type: hub.EventLobbyRemove, Data: req})
		}
	case SubscribeRoom:
		accepted = d.subscribe(c, cmd.Room)
	case UnsubscribeRoom:
		d.hub.Leave(c, cmd.Room)
		accepted = true
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", cmd.Type()).
			Msg("ignoring unknown command")
		return
	}

	if !accepted {
		log.Debug().
			Str("connection_id", c.ID).
			Str("user", c.User).
			Str("type", cmd.Type()).
			Msg("command rejected")
	}
}

// withSeat runs fn when c's user plays in the live match gameID.
func (d *Dispatcher) withSeat(c *hub.Client, gameID string, fn func(*match.Session, models.Side) bool) bool {
	s, ok := d.registry.Get(gameID)
	if !ok {
		return false
	}
	side, ok := s.SideOf(c.User)
	if !ok {
		return false
	}
	return fn(s, side)
}

func (d *Dispatcher) getGame(ctx context.Context, c *hub.Client, gameID string) bool {
	var state GameStatePayload
	if s, ok := d.registry.Get(gameID); ok {
		state = gameState(s.Snapshot(), clocksOf(s.Clocks()))
	} else {
		m, err := d.registry.Lookup(ctx, gameID)
		if err != nil {
			return false
		}
		state = gameState(m, clocksOfRecord(m.Clock))
	}
	d.hub.Send(hub.Me(c), hub.Event{Type: hub.EventGameState, Data: state})
	return true
}

// chat accepts messages for home, tv and live matches only.
func (d *Dispatcher) chat(c *hub.Client, cmd ChatMessage) bool {
	aud := hub.Spectators(cmd.Room)
	switch cmd.Room {
	case hub.RoomHome, hub.RoomTV:
	default:
		s, live := d.registry.Get(cmd.Room)
		if !live {
			return false
		}
		aud = hub.SpectatorsAndPlayers(cmd.Room, s.Players())
	}

	msg, ok := d.hub.Chat().Add(cmd.Room, c.User, c.Anonymous, cmd.Message, d.clock.Now())
	if !ok {
		return false
	}
	d.hub.Send(aud, hub.Event{Type: hub.EventChatMessage, Data: hub.ChatPayload{Room: cmd.Room, Message: &msg}})
	return true
}

func (d *Dispatcher) createChallenge(c *hub.Client, cmd ChallengeCreate) bool {
	req := models.ChallengeRequest{
		Username:  c.User,
		Variant:   cmd.Variant,
		Minutes:   cmd.Minutes,
		Increment: cmd.Increment,
		Color:     cmd.Color,
		CreatedAt: d.clock.Now(),
	}
	if err := d.hub.Lobby().Add(req); err != nil {
		log.Debug().Err(err).Str("user", c.User).Msg("challenge refused")
		return false
	}
	d.hub.Send(hub.All(), hub.Event{Type: hub.EventLobbyAdd, Data: req})
	return true
}

func (d *Dispatcher) acceptChallenge(ctx context.Context, c *hub.Client, cmd ChallengeAccept) bool {
	req, withdrawn, ok := d.hub.Lobby().Accept(cmd.Username, c.User)
	if !ok {
		return false
	}

	players := seatPlayers(req.Username, c.User, req.Color)
	tc := match.TimeControl{Minutes: req.Minutes, Increment: req.Increment}
	if _, err := d.registry.Create(ctx, req.Variant, players, tc); err != nil {
		log.Error().
			Err(err).
			Str("proposer", req.Username).
			Str("accepter", c.User).
			Msg("failed to create match from challenge")
		d.reopen(req)
		if withdrawn != nil {
			d.reopen(*withdrawn)
		}
		return false
	}

	d.hub.Send(hub.All(), hub.Event{Type: hub.EventLobbyRemove, Data: req})
	if withdrawn != nil {
		d.hub.Send(hub.All(), hub.Event{Type: hub.EventLobbyRemove, Data: *withdrawn})
	}
	return true
}

// reopen puts back a challenge taken by an accept that could not start a
// match. Its removal was never announced.
func (d *Dispatcher) reopen(req models.ChallengeRequest) {
	if err := d.hub.Lobby().Add(req); err != nil {
		log.Warn().Err(err).Str("user", req.Username).Msg("failed to reopen challenge")
	}
}

// seatPlayers orders the pair by side according to the proposer's preference.
func seatPlayers(proposer, accepter string, color models.ColorPreference) [2]string {
	proposerSide := models.White
	switch color {
	case models.ColorBlack:
		proposerSide = models.Black
	case models.ColorRandom:
		if rand.IntN(2) == 1 {
			proposerSide = models.Black
		}
	}

	var players [2]string
	players[proposerSide] = proposer
	players[proposerSide.Other()] = accepter
	return players
}

func (d *Dispatcher) subscribe(c *hub.Client, room string) bool {
	if room == "" {
		return false
	}
	d.hub.Join(c, room)

	me := hub.Me(c)
	if room == hub.RoomHome {
		d.hub.Send(me, hub.Event{Type: hub.EventLobbyFull, Data: d.hub.Lobby().List()})
		d.hub.Send(me, hub.Event{Type: hub.EventPlayersCount, Data: hub.CountPayload{Count: d.hub.ActivePlayers()}})
		d.hub.Send(me, hub.Event{Type: hub.EventGamesCount, Data: hub.CountPayload{Count: d.registry.Count()}})
	}
	d.hub.Send(me, hub.Event{Type: hub.EventChatFull, Data: hub.ChatPayload{Room: room, Messages: d.hub.Chat().Log(room)}})
	return true
}
