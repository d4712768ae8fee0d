package hub

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/mcdev12/shuuro/go/internal/models"
)

var (
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrChallengeExists  = errors.New("challenge already exists")
)

type LobbyConfig struct {
	Variants   []string `yaml:"variants"`
	Minutes    []int    `yaml:"minutes"`
	Increments []int    `yaml:"increments"`
}

func DefaultLobbyConfig() LobbyConfig {
	return LobbyConfig{
		Variants:   []string{"shuuro8", "shuuro8-lite"},
		Minutes:    []int{1, 3, 5, 10, 15, 30},
		Increments: []int{0, 1, 2, 3, 5, 10},
	}
}

// Lobby holds open challenges, at most one per user.
type Lobby struct {
	mu         sync.Mutex
	config     LobbyConfig
	challenges map[string]models.ChallengeRequest
}

func NewLobby(config LobbyConfig) *Lobby {
	return &Lobby{
		config:     config,
		challenges: make(map[string]models.ChallengeRequest),
	}
}

// Validate checks req against the allowed tables.
func (l *Lobby) Validate(req models.ChallengeRequest) error {
	switch {
	case req.Username == "":
		return fmt.Errorf("%w: missing user", ErrInvalidChallenge)
	case !slices.Contains(l.config.Variants, req.Variant):
		return fmt.Errorf("%w: variant %q", ErrInvalidChallenge, req.Variant)
	case !slices.Contains(l.config.Minutes, req.Minutes):
		return fmt.Errorf("%w: minutes %d", ErrInvalidChallenge, req.Minutes)
	case !slices.Contains(l.config.Increments, req.Increment):
		return fmt.Errorf("%w: increment %d", ErrInvalidChallenge, req.Increment)
	}
	switch req.Color {
	case models.ColorWhite, models.ColorBlack, models.ColorRandom:
		return nil
	default:
		return fmt.Errorf("%w: color %q", ErrInvalidChallenge, req.Color)
	}
}

// Add admits a valid challenge if its proposer has none open.
func (l *Lobby) Add(req models.ChallengeRequest) error {
	if err := l.Validate(req); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.challenges[req.Username]; ok {
		return ErrChallengeExists
	}
	l.challenges[req.Username] = req
	return nil
}

// Withdraw removes user's challenge.
func (l *Lobby) Withdraw(user string) (models.ChallengeRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.challenges[user]
	if ok {
		delete(l.challenges, user)
	}
	return req, ok
}

// Accept takes proposer's challenge for accepter. The accepter's own open
// challenge, if any, is removed too and returned as withdrawn.
func (l *Lobby) Accept(proposer, accepter string) (req models.ChallengeRequest, withdrawn *models.ChallengeRequest, ok bool) {
	if proposer == accepter {
		return models.ChallengeRequest{}, nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok = l.challenges[proposer]
	if !ok {
		return models.ChallengeRequest{}, nil, false
	}
	delete(l.challenges, proposer)
	if own, exists := l.challenges[accepter]; exists {
		delete(l.challenges, accepter)
		withdrawn = &own
	}
	return req, withdrawn, true
}

// List returns the open challenges, oldest first.
func (l *Lobby) List() []models.ChallengeRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.ChallengeRequest, 0, len(l.challenges))
	for _, req := range l.challenges {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Username < out[j].Username
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
