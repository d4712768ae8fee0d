package gateway

import (
	"time"

	"github.com/mcdev12/shuuro/go/internal/hub"
	"github.com/mcdev12/shuuro/go/internal/match"
	"github.com/mcdev12/shuuro/go/internal/models"
)

// Clocks is the remaining time of both sides in milliseconds.
type Clocks struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

func clocksOf(d [2]time.Duration) Clocks {
	return Clocks{
		White: max(d[models.White].Milliseconds(), 0),
		Black: max(d[models.Black].Milliseconds(), 0),
	}
}

func clocksOfRecord(rec models.ClockRecord) Clocks {
	return Clocks{White: rec.RemainingMs[models.White], Black: rec.RemainingMs[models.Black]}
}

// GameStatePayload is the full picture of a match, sent on start and on get_game.
type GameStatePayload struct {
	GameID     string         `json:"game_id"`
	Variant    string         `json:"variant"`
	Players    [2]string      `json:"players"`
	Stage      string         `json:"stage"`
	Status     int            `json:"status"`
	Result     string         `json:"result,omitempty"`
	Minutes    int            `json:"minutes"`
	Increment  int            `json:"increment"`
	Clocks     Clocks         `json:"clocks"`
	Position   string         `json:"position,omitempty"`
	SideToMove models.Side    `json:"side_to_move"`
	Hands      *[2]string     `json:"hands,omitempty"`
	History    models.History `json:"history"`
	Confirmed  [2]bool        `json:"confirmed"`
	DrawOffers [2]bool        `json:"draw_offers"`
}

// gameState builds the payload. Shop hands stay private until the deploy stage.
func gameState(m models.Match, clocks Clocks) GameStatePayload {
	p := GameStatePayload{
		GameID:     m.ID,
		Variant:    m.Variant,
		Players:    m.Players,
		Stage:      m.Stage.String(),
		Status:     int(m.Status),
		Result:     m.Result,
		Minutes:    m.Minutes,
		Increment:  m.Increment,
		Clocks:     clocks,
		Position:   m.Position,
		SideToMove: m.SideToMove,
		History:    m.History,
		Confirmed:  m.Confirmed,
		DrawOffers: m.DrawOffers,
	}
	if m.Stage == models.StageShop {
		// the shop history would reveal the armies too
		p.History.Shop = nil
	} else {
		hands := m.Hands
		p.Hands = &hands
	}
	return p
}

type BuyPayload struct {
	GameID string      `json:"game_id"`
	Side   models.Side `json:"side"`
	Piece  string      `json:"piece"`
	Hand   string      `json:"hand"`
	Clocks Clocks      `json:"clocks"`
}

type ConfirmedPayload struct {
	GameID    string      `json:"game_id"`
	Side      models.Side `json:"side"`
	Confirmed [2]bool     `json:"confirmed"`
	Clocks    Clocks      `json:"clocks"`
}

type RedirectPayload struct {
	GameID     string      `json:"game_id"`
	Stage      string      `json:"stage"`
	Position   string      `json:"position"`
	SideToMove models.Side `json:"side_to_move"`
	Hands      [2]string   `json:"hands"`
	Clocks     Clocks      `json:"clocks"`
}

type MovePayload struct {
	GameID     string      `json:"game_id"`
	Side       models.Side `json:"side"`
	Move       string      `json:"move"`
	Position   string      `json:"position"`
	SideToMove models.Side `json:"side_to_move"`
	Clocks     Clocks      `json:"clocks"`
}

type DrawPayload struct {
	GameID string      `json:"game_id"`
	Side   models.Side `json:"side"`
	Offers [2]bool     `json:"offers"`
}

type SidePayload struct {
	GameID string      `json:"game_id"`
	Side   models.Side `json:"side"`
}

type EndPayload struct {
	GameID string    `json:"game_id"`
	Status int       `json:"status"`
	Result string    `json:"result"`
	Clocks Clocks    `json:"clocks"`
	Stage  string    `json:"stage"`
	Hands  [2]string `json:"hands"`
}

type HandPayload struct {
	GameID  string      `json:"game_id"`
	Side    models.Side `json:"side"`
	Hand    string      `json:"hand"`
	Credits int         `json:"credits"`
}

// Notifier turns match updates into hub events.
type Notifier struct {
	hub *hub.Hub
}

var _ match.Observer = (*Notifier)(nil)

func NewNotifier(h *hub.Hub) *Notifier {
	return &Notifier{hub: h}
}

func (n *Notifier) MatchStarted(m models.Match, activeGames int) {
	start := hub.Event{Type: hub.EventGameStart, Data: gameState(m, clocksOfRecord(m.Clock))}
	n.hub.Send(hub.SpectatorsAndPlayers(hub.RoomTV, m.Players), start)
	n.hub.Send(hub.All(), hub.Event{Type: hub.EventGamesCount, Data: hub.CountPayload{Count: activeGames}})
}

func (n *Notifier) MatchUpdated(u match.Update) {
	m := u.Match
	room := hub.SpectatorsAndPlayers(m.ID, m.Players)
	clocks := clocksOf(u.Clocks)

	switch u.Kind {
	case match.UpdateBuy:
		// purchases stay between the buyer and the server
		buyer := m.Players[u.Side]
		n.hub.Send(hub.Players([2]string{buyer, buyer}), hub.Event{Type: hub.EventGameBuy, Data: BuyPayload{
			GameID: m.ID, Side: u.Side, Piece: u.Move, Hand: m.Hands[u.Side], Clocks: clocks,
		}})
	case match.UpdateConfirm:
		n.hub.Send(room, hub.Event{Type: hub.EventGameBuyConfirmed, Data: ConfirmedPayload{
			GameID: m.ID, Side: u.Side, Confirmed: m.Confirmed, Clocks: clocks,
		}})
		if u.StageChanged {
			n.hub.Send(room, hub.Event{Type: hub.EventRedirectDeploy, Data: redirect(m, clocks)})
		}
	case match.UpdatePlace:
		n.hub.Send(room, hub.Event{Type: hub.EventGamePlace, Data: move(u, clocks)})
		if u.StageChanged {
			n.hub.Send(room, hub.Event{Type: hub.EventRedirectFight, Data: redirect(m, clocks)})
		}
	case match.UpdatePlay:
		play := hub.Event{Type: hub.EventGamePlay, Data: move(u, clocks)}
		n.hub.Send(room, play)
		n.hub.Send(hub.Spectators(hub.RoomTV), play)
	case match.UpdateDraw:
		n.hub.Send(room, hub.Event{Type: hub.EventGameDraw, Data: DrawPayload{
			GameID: m.ID, Side: u.Side, Offers: m.DrawOffers,
		}})
	case match.UpdateResign:
		n.hub.Send(room, hub.Event{Type: hub.EventGameResign, Data: SidePayload{GameID: m.ID, Side: u.Side}})
	case match.UpdateTimeout:
		n.hub.Send(room, hub.Event{Type: hub.EventGameTimeout, Data: SidePayload{GameID: m.ID, Side: u.Side}})
	}

	if u.Ended {
		n.hub.Chat().Clear(m.ID)
		end := hub.Event{Type: hub.EventGameEnd, Data: EndPayload{
			GameID: m.ID, Status: int(m.Status), Result: m.Result, Clocks: clocks, Stage: m.Stage.String(), Hands: m.Hands,
		}}
		n.hub.Send(room, end)
		n.hub.Send(hub.Spectators(hub.RoomTV), end)
		n.hub.Send(hub.All(), hub.Event{Type: hub.EventGamesCount, Data: hub.CountPayload{Count: u.ActiveGames}})
	}
}

func redirect(m models.Match, clocks Clocks) RedirectPayload {
	return RedirectPayload{
		GameID:     m.ID,
		Stage:      m.Stage.String(),
		Position:   m.Position,
		SideToMove: m.SideToMove,
		Hands:      m.Hands,
		Clocks:     clocks,
	}
}

func move(u match.Update, clocks Clocks) MovePayload {
	return MovePayload{
		GameID:     u.Match.ID,
		Side:       u.Side,
		Move:       u.Move,
		Position:   u.Match.Position,
		SideToMove: u.Match.SideToMove,
		Clocks:     clocks,
	}
}
