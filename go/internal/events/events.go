// Package events publishes match lifecycle events for downstream consumers
// such as rating computation.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event types.
const (
	TypeMatchStarted = "match_started"
	TypeMatchEnded   = "match_ended"
)

// Event is one lifecycle event ready to publish.
type Event struct {
	ID        uuid.UUID
	Type      string
	MatchID   string
	CreatedAt time.Time
	Payload   json.RawMessage
}

// MatchStartedPayload is the payload for a match_started event
type MatchStartedPayload struct {
	MatchID   string    `json:"match_id"`
	Variant   string    `json:"variant"`
	White     string    `json:"white"`
	Black     string    `json:"black"`
	Minutes   int       `json:"minutes"`
	Increment int       `json:"increment"`
	StartedAt time.Time `json:"started_at"`
}

// MatchEndedPayload is the payload for a match_ended event
type MatchEndedPayload struct {
	MatchID    string    `json:"match_id"`
	Variant    string    `json:"variant"`
	White      string    `json:"white"`
	Black      string    `json:"black"`
	Status     int       `json:"status"`
	Result     string    `json:"result"`
	ShopMoves  int       `json:"shop_moves"`
	FightMoves int       `json:"fight_moves"`
	EndedAt    time.Time `json:"ended_at"`
}

// New wraps payload into an event with a fresh id.
func New(eventType, matchID string, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		MatchID:   matchID,
		CreatedAt: at,
		Payload:   data,
	}, nil
}

// Publisher delivers events to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher writes events to the log. Used when no bus is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.Type).
		Str("match_id", event.MatchID).
		RawJSON("payload", event.Payload).
		Msg("match event")
	return nil
}

func (LogPublisher) Close() error { return nil }
