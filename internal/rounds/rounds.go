package rounds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gambiarra/arena-backend/internal/hub"
	"github.com/gambiarra/arena-backend/internal/models"
	"github.com/gambiarra/arena-backend/internal/store"
	"github.com/gambiarra/arena-backend/pkg/types"
)

var ErrRoundNotFound = errors.New("round not found")
var ErrAlreadyStarted = errors.New("round already started")
var ErrNotStarted = errors.New("round not started")
var ErrAlreadyEnded = errors.New("round already ended")
var ErrSessionNotActive = errors.New("session not active")

// CreateParams are the immutable round parameters. Zero MaxTokens,
// Temperature and DeadlineMs are filled by the control-plane defaults
// before reaching here.
type CreateParams struct {
	SessionID   string
	Prompt      string
	MaxTokens   int
	Temperature float64
	DeadlineMs  int
	Seed        *int
}

// Manager owns round lifecycle transitions. Start and stop are atomic
// check-and-set against the round's own timestamps; the "at most one
// active round" invariant is the caller's to enforce via Current.
type Manager struct {
	store store.Store
	hub   *hub.Hub
	log   *zap.Logger
	mu    sync.Mutex // serializes start/stop transitions
}

func NewManager(st store.Store, h *hub.Hub, log *zap.Logger) *Manager {
	return &Manager{store: st, hub: h, log: log}
}

// Create adds a pending round with the next 1-based index in the session.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*models.Round, error) {
	session, err := m.store.ActiveSession(ctx)
	if err != nil || session.ID != p.SessionID {
		return nil, ErrSessionNotActive
	}

	index, err := m.store.NextRoundIndex(ctx, p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign round index: %w", err)
	}

	round := &models.Round{
		SessionID:   p.SessionID,
		Index:       index,
		Prompt:      p.Prompt,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		DeadlineMs:  p.DeadlineMs,
		Seed:        p.Seed,
	}
	if err := m.store.CreateRound(ctx, round); err != nil {
		return nil, err
	}

	m.log.Info("round created",
		zap.String("round_id", round.ID),
		zap.Int("index", round.Index))
	return round, nil
}

// Start transitions pending -> active and broadcasts the challenge to
// every connection.
func (m *Manager) Start(ctx context.Context, roundID string) (*models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	round, err := m.store.Round(ctx, roundID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	if round.StartedAt != nil {
		return nil, ErrAlreadyStarted
	}

	now := time.Now()
	round.StartedAt = &now
	if err := m.store.SaveRound(ctx, round); err != nil {
		return nil, err
	}

	m.hub.BroadcastJSON(types.ChallengeMessage{
		Type:        "challenge",
		SessionID:   round.SessionID,
		Round:       round.Index,
		Prompt:      round.Prompt,
		MaxTokens:   round.MaxTokens,
		Temperature: round.Temperature,
		DeadlineMs:  round.DeadlineMs,
		Seed:        round.Seed,
	})

	m.log.Info("round started",
		zap.String("round_id", round.ID),
		zap.Int("index", round.Index))
	return round, nil
}

// Stop transitions active -> ended. Ended is terminal.
func (m *Manager) Stop(ctx context.Context, roundID string) (*models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	round, err := m.store.Round(ctx, roundID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	if round.StartedAt == nil {
		return nil, ErrNotStarted
	}
	if round.EndedAt != nil {
		return nil, ErrAlreadyEnded
	}

	now := time.Now()
	round.EndedAt = &now
	if err := m.store.SaveRound(ctx, round); err != nil {
		return nil, err
	}

	m.log.Info("round stopped",
		zap.String("round_id", round.ID),
		zap.Int("index", round.Index))
	return round, nil
}

// Current returns the active round with the highest index for the session,
// or nil when none is active.
func (m *Manager) Current(ctx context.Context, sessionID string) (*models.Round, error) {
	round, err := m.store.CurrentRound(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return round, nil
}

// Get looks a round up by id.
func (m *Manager) Get(ctx context.Context, roundID string) (*models.Round, error) {
	round, err := m.store.Round(ctx, roundID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoundNotFound
	}
	return round, err
}
