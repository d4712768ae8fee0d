package models

import (
	"fmt"
	"time"
)

// Side identifies one of the two players of a match.
type Side int

const (
	White Side = iota
	Black
)

// Other returns the opposing side.
func (s Side) Other() Side {
	return 1 - s
}

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "white":
		*s = White
	case "black":
		*s = Black
	default:
		return fmt.Errorf("unknown side %q", string(b))
	}
	return nil
}

// Stage is the phase a match is in. Stages only move forward.
type Stage int

const (
	StageShop Stage = iota
	StageDeploy
	StageFight
	StageEnded
)

func (s Stage) String() string {
	switch s {
	case StageShop:
		return "shop"
	case StageDeploy:
		return "deploy"
	case StageFight:
		return "fight"
	case StageEnded:
		return "ended"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// MatchStatus is the persisted status code. Negative values are unfinished matches.
type MatchStatus int

const (
	StatusPreparing      MatchStatus = -2 // shop or deploy
	StatusFighting       MatchStatus = -1
	StatusCheckmate      MatchStatus = 1
	StatusResign         MatchStatus = 2
	StatusStalemate      MatchStatus = 3
	StatusRepetition     MatchStatus = 4
	StatusMaterial       MatchStatus = 5
	StatusDrawAgreed     MatchStatus = 6
	StatusLostOnTime     MatchStatus = 7
	StatusDrawOnTime     MatchStatus = 8
	StatusFirstMoveError MatchStatus = 9
)

// Finished reports whether the status is terminal.
func (s MatchStatus) Finished() bool {
	return s > 0
}

// Match results.
const (
	ResultWhite = "white"
	ResultBlack = "black"
	ResultDraw  = "draw"
)

// ResultFor returns the result string for a win by side.
func ResultFor(winner Side) string {
	if winner == Black {
		return ResultBlack
	}
	return ResultWhite
}

// ClockRecord is the persisted form of a match clock.
type ClockRecord struct {
	RemainingMs [2]int64  `json:"remaining_ms"`
	IncrementMs int64     `json:"increment_ms"`
	LastClick   time.Time `json:"last_click"`
	Stopped     [2]bool   `json:"stopped"`
}

// History holds the moves of each stage in play order.
type History struct {
	Shop   []string `json:"shop"`
	Deploy []string `json:"deploy"`
	Fight  []string `json:"fight"`
}

// Match is the persisted document for one match.
type Match struct {
	ID          string      `json:"id"`
	Variant     string      `json:"variant"`
	Family      string      `json:"family"`
	Players     [2]string   `json:"players"`
	Stage       Stage       `json:"stage"`
	Status      MatchStatus `json:"status"`
	Result      string      `json:"result,omitempty"`
	Minutes     int         `json:"minutes"`
	Increment   int         `json:"increment"`
	Clock       ClockRecord `json:"clock"`
	Credits     int         `json:"credits"`
	Hands       [2]string   `json:"hands"`
	DeployHands [2]string   `json:"deploy_hands,omitempty"`
	FightStart  string      `json:"fight_start,omitempty"`
	Position    string      `json:"position,omitempty"`
	SideToMove  Side        `json:"side_to_move"`
	History     History     `json:"history"`
	Confirmed   [2]bool     `json:"confirmed"`
	DrawOffers  [2]bool     `json:"draw_offers"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SideOf returns the side played by user.
func (m *Match) SideOf(user string) (Side, bool) {
	switch user {
	case m.Players[White]:
		return White, true
	case m.Players[Black]:
		return Black, true
	default:
		return White, false
	}
}

// Ply is one accepted move together with the clock state it left behind.
type Ply struct {
	Stage Stage       `json:"stage"`
	Move  string      `json:"move"`
	Clock ClockRecord `json:"clock"`
}
