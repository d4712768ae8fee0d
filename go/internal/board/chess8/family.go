// Package chess8 is the 8x8 board family: a priced shop, deployment on the two
// home ranks and a standard chess fight.
package chess8

import "github.com/mcdev12/shuuro/go/internal/board"

// Name is the family identifier used in variant configuration.
const Name = "chess8"

type family struct{}

// New returns the 8x8 board family.
func New() board.Family {
	return family{}
}

func (family) Name() string { return Name }

func (family) NewShop(credits int) board.Shop {
	return newShop(credits)
}

func (family) NewDeploy(hands [2]string) (board.Position, error) {
	d, err := newDeploy(hands)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (family) NewFight(serialization string) (board.Position, error) {
	f, err := newFight(serialization)
	if err != nil {
		return nil, err
	}
	return f, nil
}
