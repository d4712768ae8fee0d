// Package board defines the capability a match needs from a board implementation.
// Move legality, check detection and position encoding live behind these interfaces;
// the match engine only invokes them.
package board

import (
	"errors"

	"github.com/mcdev12/shuuro/go/internal/models"
)

// ErrRejected is returned when a position refuses a move.
var ErrRejected = errors.New("move rejected")

// OutcomeKind classifies a position after a move.
type OutcomeKind int

const (
	Ongoing OutcomeKind = iota
	Check
	Stalemate
	DrawByRepetition
	DrawByMaterial
	Checkmate
)

func (k OutcomeKind) String() string {
	switch k {
	case Ongoing:
		return "ongoing"
	case Check:
		return "check"
	case Stalemate:
		return "stalemate"
	case DrawByRepetition:
		return "draw_by_repetition"
	case DrawByMaterial:
		return "draw_by_material"
	case Checkmate:
		return "checkmate"
	default:
		return "unknown"
	}
}

// Outcome is the classification of the current position. Winner is only
// meaningful for Checkmate.
type Outcome struct {
	Kind   OutcomeKind
	Winner models.Side
}

// Terminal reports whether the outcome ends the match.
func (o Outcome) Terminal() bool {
	switch o.Kind {
	case Stalemate, DrawByRepetition, DrawByMaterial, Checkmate:
		return true
	}
	return false
}

// Shop tracks army purchases for both sides.
type Shop interface {
	// Buy records a purchase. It returns false when the candidate is not a
	// known piece, and ok=false with valid=true when it is known but not affordable.
	Buy(side models.Side, candidate string) (valid bool, ok bool)
	Confirm(side models.Side)
	Confirmed(side models.Side) bool
	Credits(side models.Side) int
	Hand(side models.Side) string
}

// Position is a board in the deploy or fight stage.
type Position interface {
	// Apply plays move for side and returns the new serialization, or ErrRejected.
	Apply(side models.Side, move string) (string, error)
	LegalMoves(side models.Side) []string
	Outcome() Outcome
	SideToMove() models.Side
	Serialize() string
	// StageComplete reports whether the deploy stage has nothing left to place.
	StageComplete() bool
	InCheck(side models.Side) bool
	// Hand returns the pieces side still has to place.
	Hand(side models.Side) string
}

// Family builds boards for one board-size variant family.
type Family interface {
	Name() string
	NewShop(credits int) Shop
	NewDeploy(hands [2]string) (Position, error)
	NewFight(serialization string) (Position, error)
}
