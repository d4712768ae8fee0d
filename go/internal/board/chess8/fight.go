package chess8

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"

	"github.com/mcdev12/shuuro/go/internal/board"
	"github.com/mcdev12/shuuro/go/internal/models"
)

// fightPosition delegates legality and outcome to a chess game seeded from the
// final deploy placement.
type fightPosition struct {
	game *chess.Game
}

func newFight(fen string) (*fightPosition, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fight position: %w", err)
	}
	return &fightPosition{game: chess.NewGame(opt)}, nil
}

func (f *fightPosition) Apply(side models.Side, move string) (string, error) {
	if f.game.Outcome() != chess.NoOutcome || side != f.SideToMove() {
		return "", board.ErrRejected
	}
	if err := f.game.PushNotationMove(strings.TrimSpace(move), chess.UCINotation{}, nil); err != nil {
		return "", board.ErrRejected
	}
	for _, m := range f.game.EligibleDraws() {
		if m == chess.ThreefoldRepetition {
			_ = f.game.Draw(m)
			break
		}
	}
	return f.game.FEN(), nil
}

func (f *fightPosition) LegalMoves(side models.Side) []string {
	if f.game.Outcome() != chess.NoOutcome || side != f.SideToMove() {
		return nil
	}
	var moves []string
	for _, m := range f.game.ValidMoves() {
		moves = append(moves, m.String())
	}
	return moves
}

func (f *fightPosition) Outcome() board.Outcome {
	switch f.game.Outcome() {
	case chess.WhiteWon:
		return board.Outcome{Kind: board.Checkmate, Winner: models.White}
	case chess.BlackWon:
		return board.Outcome{Kind: board.Checkmate, Winner: models.Black}
	case chess.Draw:
		switch f.game.Method() {
		case chess.Stalemate:
			return board.Outcome{Kind: board.Stalemate}
		case chess.InsufficientMaterial:
			return board.Outcome{Kind: board.DrawByMaterial}
		default:
			// repetition and move-count rules
			return board.Outcome{Kind: board.DrawByRepetition}
		}
	}

	moves := f.game.Moves()
	if len(moves) > 0 && moves[len(moves)-1].HasTag(chess.Check) {
		return board.Outcome{Kind: board.Check}
	}
	return board.Outcome{Kind: board.Ongoing}
}

func (f *fightPosition) SideToMove() models.Side {
	if f.game.Position().Turn() == chess.Black {
		return models.Black
	}
	return models.White
}

func (f *fightPosition) Serialize() string {
	return f.game.FEN()
}

func (f *fightPosition) Hand(models.Side) string {
	return ""
}

func (f *fightPosition) StageComplete() bool {
	return f.game.Outcome() != chess.NoOutcome
}

// InCheck reports whether side's king is attacked, by letting the opponent
// move from the current placement and looking for a capture on the king square.
func (f *fightPosition) InCheck(side models.Side) bool {
	king := chess.WhiteKing
	if side == models.Black {
		king = chess.BlackKing
	}
	var kingSq chess.Square
	found := false
	for sq, p := range f.game.Position().Board().SquareMap() {
		if p == king {
			kingSq, found = sq, true
			break
		}
	}
	if !found {
		return false
	}

	fields := strings.Fields(f.game.FEN())
	if len(fields) < 4 {
		return false
	}
	fields[1] = "w"
	if side == models.White {
		fields[1] = "b"
	}
	fields[3] = "-"
	opt, err := chess.FEN(strings.Join(fields, " "))
	if err != nil {
		return false
	}
	for _, m := range chess.NewGame(opt).ValidMoves() {
		if m.S2() == kingSq {
			return true
		}
	}
	return false
}
