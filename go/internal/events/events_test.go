package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := MatchEndedPayload{MatchID: "abc123", White: "alice", Black: "bob", Status: 7, Result: "black"}

	first, err := New(TypeMatchEnded, "abc123", payload, at)
	require.NoError(t, err)
	second, err := New(TypeMatchEnded, "abc123", payload, at)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "every event gets its own id")
	assert.Equal(t, TypeMatchEnded, first.Type)
	assert.Equal(t, at, first.CreatedAt)

	var decoded MatchEndedPayload
	require.NoError(t, json.Unmarshal(first.Payload, &decoded))
	assert.Equal(t, payload, decoded)
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), first))
}

func TestNew_UnmarshalablePayload(t *testing.T) {
	_, err := New(TypeMatchStarted, "abc123", make(chan int), time.Now())
	assert.Error(t, err)
}

func TestJetStreamPublisher_Subject(t *testing.T) {
	p := &JetStreamPublisher{config: DefaultJetStreamConfig()}
	assert.Equal(t, "match.events.match_started", p.Subject(TypeMatchStarted))
	assert.NoError(t, p.Close())
}

func TestNewJetStreamPublisher_Unreachable(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	cfg.URL = "nats://127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewJetStreamPublisher(ctx, cfg)
	assert.ErrorContains(t, err, "failed to connect to NATS")
}
