package models

import "time"

// ColorPreference is the side a challenger wants to play.
type ColorPreference string

const (
	ColorWhite  ColorPreference = "white"
	ColorBlack  ColorPreference = "black"
	ColorRandom ColorPreference = "random"
)

// ChallengeRequest is a pending lobby entry waiting for an opponent.
type ChallengeRequest struct {
	Username  string          `json:"username"`
	Variant   string          `json:"variant"`
	Minutes   int             `json:"minutes"`
	Increment int             `json:"increment"`
	Color     ColorPreference `json:"color"`
	CreatedAt time.Time       `json:"created_at"`
}
