package chess8

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/shuuro/go/internal/board"
	"github.com/mcdev12/shuuro/go/internal/models"
)

const size = 8

// deployPosition places purchased pieces on each side's two home ranks.
// White places first; a side with an empty hand is skipped.
type deployPosition struct {
	squares [size * size]byte
	hands   [2][]byte
	turn    models.Side
}

func newDeploy(hands [2]string) (*deployPosition, error) {
	d := &deployPosition{turn: models.White}
	for side := models.White; side <= models.Black; side++ {
		for i := 0; i < len(hands[side]); i++ {
			c := hands[side][i]
			if _, ok := prices[lower(c)]; !ok && lower(c) != 'k' {
				return nil, fmt.Errorf("invalid piece %q in %s hand", c, side)
			}
			if sideOfLetter(c) != side {
				return nil, fmt.Errorf("piece %q does not belong to %s", c, side)
			}
			d.hands[side] = append(d.hands[side], c)
		}
		if countPiece(d.hands[side], 'k') != 1 {
			return nil, fmt.Errorf("%s hand must hold exactly one king", side)
		}
	}
	return d, nil
}

func (d *deployPosition) Apply(side models.Side, move string) (string, error) {
	if side != d.turn || d.StageComplete() {
		return "", board.ErrRejected
	}
	piece, sq, ok := parsePlacement(move)
	if !ok {
		return "", board.ErrRejected
	}
	idx := indexOf(d.hands[side], piece)
	if idx < 0 || !d.canPlace(side, piece, sq) {
		return "", board.ErrRejected
	}

	d.squares[sq] = d.hands[side][idx]
	d.hands[side] = append(d.hands[side][:idx], d.hands[side][idx+1:]...)

	switch {
	case len(d.hands[side.Other()]) > 0:
		d.turn = side.Other()
	case len(d.hands[side]) > 0:
		d.turn = side
	default:
		// the fight starts with the opponent of the last placer
		d.turn = side.Other()
	}
	return d.Serialize(), nil
}

func (d *deployPosition) canPlace(side models.Side, piece byte, sq int) bool {
	if d.squares[sq] != 0 {
		return false
	}
	if piece != 'k' && indexOf(d.hands[side], 'k') >= 0 {
		return false
	}
	rank := sq / size
	home, second := 0, 1
	if side == models.Black {
		home, second = 7, 6
	}
	if piece == 'p' {
		return rank == second
	}
	if rank == second {
		// every pawn in hand still needs a square on the second rank
		return d.freeOn(second) > countPiece(d.hands[side], 'p')
	}
	return rank == home
}

func (d *deployPosition) freeOn(rank int) int {
	n := 0
	for file := 0; file < size; file++ {
		if d.squares[rank*size+file] == 0 {
			n++
		}
	}
	return n
}

func (d *deployPosition) LegalMoves(side models.Side) []string {
	if side != d.turn || d.StageComplete() {
		return nil
	}
	seen := map[byte]bool{}
	var moves []string
	for _, c := range d.hands[side] {
		piece := lower(c)
		if seen[piece] {
			continue
		}
		seen[piece] = true
		for sq := 0; sq < size*size; sq++ {
			if d.canPlace(side, piece, sq) {
				moves = append(moves, fmt.Sprintf("%c@%s", sideLetter(models.White, piece), squareName(sq)))
			}
		}
	}
	return moves
}

func (d *deployPosition) Outcome() board.Outcome {
	return board.Outcome{Kind: board.Ongoing}
}

func (d *deployPosition) SideToMove() models.Side {
	return d.turn
}

func (d *deployPosition) StageComplete() bool {
	return len(d.hands[models.White]) == 0 && len(d.hands[models.Black]) == 0
}

func (d *deployPosition) InCheck(models.Side) bool {
	return false
}

func (d *deployPosition) Hand(side models.Side) string {
	return string(d.hands[side])
}

// Serialize returns the placement as FEN. Castling is never available.
func (d *deployPosition) Serialize() string {
	var b strings.Builder
	for rank := size - 1; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < size; file++ {
			c := d.squares[rank*size+file]
			if c == 0 {
				empty++
				continue
			}
			if empty > 0 {
				b.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			b.WriteByte(c)
		}
		if empty > 0 {
			b.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			b.WriteByte('/')
		}
	}
	turn := "w"
	if d.turn == models.Black {
		turn = "b"
	}
	return b.String() + " " + turn + " - - 0 1"
}

// parsePlacement reads "Q@d1" into a lowercase piece and a square index.
func parsePlacement(move string) (byte, int, bool) {
	move = strings.TrimSpace(move)
	if len(move) != 4 || move[1] != '@' {
		return 0, 0, false
	}
	piece := lower(move[0])
	if _, ok := prices[piece]; !ok && piece != 'k' {
		return 0, 0, false
	}
	sq, ok := parseSquare(move[2:])
	return piece, sq, ok
}

func parseSquare(s string) (int, bool) {
	if len(s) != 2 {
		return 0, false
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file >= size || rank < 0 || rank >= size {
		return 0, false
	}
	return rank*size + file, true
}

func squareName(sq int) string {
	return string([]byte{byte('a' + sq%size), byte('1' + sq/size)})
}

func indexOf(hand []byte, piece byte) int {
	for i, c := range hand {
		if lower(c) == piece {
			return i
		}
	}
	return -1
}
