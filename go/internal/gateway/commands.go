package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/shuuro/go/internal/models"
)

// ErrMalformed is returned for frames that are not a JSON object with a type.
var ErrMalformed = errors.New("malformed command")

// Command is an inbound client message. The set is closed: DecodeCommand
// returns one of the types below, or Unknown.
type Command interface {
	Type() string
}

type Buy struct {
	GameID string `json:"game_id"`
	Piece  string `json:"game_move"`
}

type Confirm struct {
	GameID string `json:"game_id"`
}

type Place struct {
	GameID string `json:"game_id"`
	Move   string `json:"game_move"`
}

type Play struct {
	GameID string `json:"game_id"`
	Move   string `json:"game_move"`
}

type Resign struct {
	GameID string `json:"game_id"`
}

type DrawOffer struct {
	GameID string `json:"game_id"`
}

type GetGame struct {
	GameID string `json:"game_id"`
}

type GetHand struct {
	GameID string `json:"game_id"`
}

type GetConfirmed struct {
	GameID string `json:"game_id"`
}

type ChatMessage struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

type ChallengeCreate struct {
	Variant   string                 `json:"variant"`
	Minutes   int                    `json:"minutes"`
	Increment int                    `json:"increment"`
	Color     models.ColorPreference `json:"color"`
}

type ChallengeAccept struct {
	Username string `json:"username"`
}

type ChallengeWithdraw struct{}

type SubscribeRoom struct {
	Room string `json:"room"`
}

type UnsubscribeRoom struct {
	Room string `json:"room"`
}

// Unknown carries a tag this server does not handle.
type Unknown struct {
	Tag string
}

func (Buy) Type() string               { return "buy" }
func (Confirm) Type() string           { return "confirm" }
func (Place) Type() string             { return "place" }
func (Play) Type() string              { return "play" }
func (Resign) Type() string            { return "resign" }
func (DrawOffer) Type() string         { return "draw_offer" }
func (GetGame) Type() string           { return "get_game" }
func (GetHand) Type() string           { return "get_hand" }
func (GetConfirmed) Type() string      { return "get_confirmed" }
func (ChatMessage) Type() string       { return "chat_message" }
func (ChallengeCreate) Type() string   { return "challenge_create" }
func (ChallengeAccept) Type() string   { return "challenge_accept" }
func (ChallengeWithdraw) Type() string { return "challenge_withdraw" }
func (SubscribeRoom) Type() string     { return "subscribe_room" }
func (UnsubscribeRoom) Type() string   { return "unsubscribe_room" }
func (u Unknown) Type() string         { return u.Tag }

// DecodeCommand parses one websocket frame.
func DecodeCommand(data []byte) (Command, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case "buy":
		return decode[Buy](data)
	case "confirm":
		return decode[Confirm](data)
	case "place":
		return decode[Place](data)
	case "play":
		return decode[Play](data)
	case "resign":
		return decode[Resign](data)
	case "draw_offer":
		return decode[DrawOffer](data)
	case "get_game":
		return decode[GetGame](data)
	case "get_hand":
		return decode[GetHand](data)
	case "get_confirmed":
		return decode[GetConfirmed](data)
	case "chat_message":
		return decode[ChatMessage](data)
	case "challenge_create":
		return decode[ChallengeCreate](data)
	case "challenge_accept":
		return decode[ChallengeAccept](data)
	case "challenge_withdraw":
		return ChallengeWithdraw{}, nil
	case "subscribe_room":
		return decode[SubscribeRoom](data)
	case "unsubscribe_room":
		return decode[UnsubscribeRoom](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Unknown{Tag: env.Type}, nil
	}
}

func decode[T Command](data []byte) (Command, error) {
	var cmd T
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, cmd.Type(), err)
	}
	return cmd, nil
}
