package chess8

import (
	"strings"

	"github.com/mcdev12/shuuro/go/internal/models"
)

const (
	maxBought = 15
	maxPawns  = 8
)

var prices = map[byte]int{
	'q': 110,
	'r': 70,
	'b': 40,
	'n': 40,
	'p': 10,
}

type shop struct {
	credits   [2]int
	hands     [2][]byte
	confirmed [2]bool
}

func newShop(credits int) *shop {
	return &shop{
		credits: [2]int{credits, credits},
		hands:   [2][]byte{{'K'}, {'k'}},
	}
}

func (s *shop) Buy(side models.Side, candidate string) (bool, bool) {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) != 1 {
		return false, false
	}
	piece := lower(candidate[0])
	price, known := prices[piece]
	if !known {
		return false, false
	}
	if s.confirmed[side] || price > s.credits[side] {
		return true, false
	}

	hand := s.hands[side]
	if len(hand)-1 >= maxBought {
		return true, false
	}
	if piece == 'p' && countPiece(hand, 'p') >= maxPawns {
		return true, false
	}

	s.credits[side] -= price
	s.hands[side] = append(hand, sideLetter(side, piece))
	return true, true
}

func (s *shop) Confirm(side models.Side) {
	s.confirmed[side] = true
}

func (s *shop) Confirmed(side models.Side) bool {
	return s.confirmed[side]
}

func (s *shop) Credits(side models.Side) int {
	return s.credits[side]
}

func (s *shop) Hand(side models.Side) string {
	return string(s.hands[side])
}

func countPiece(hand []byte, piece byte) int {
	n := 0
	for _, c := range hand {
		if lower(c) == piece {
			n++
		}
	}
	return n
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func sideLetter(side models.Side, piece byte) byte {
	if side == models.White {
		return piece - ('a' - 'A')
	}
	return piece
}

func sideOfLetter(c byte) models.Side {
	if c >= 'A' && c <= 'Z' {
		return models.White
	}
	return models.Black
}
