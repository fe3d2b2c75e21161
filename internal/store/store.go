package store

import (
	"context"
	"errors"
	"time"

	"github.com/gambiarra/arena-backend/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// VoteStats is the per-participant vote aggregate for a round.
type VoteStats struct {
	Count int
	Avg   float64
}

// SessionStats are the aggregate counters for a whole session.
type SessionStats struct {
	TotalRounds       int `json:"total_rounds"`
	CompletedRounds   int `json:"completed_rounds"`
	TotalParticipants int `json:"total_participants"`
	TotalTokens       int `json:"total_tokens"`
	TotalVotes        int `json:"total_votes"`
}

// Store is the persistence boundary for the arena. Upserts are explicit
// create-or-replace: a second write for the same key overwrites, never
// merges or accumulates.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	ActiveSession(ctx context.Context) (*models.Session, error)
	EndActiveSessions(ctx context.Context) error

	UpsertParticipant(ctx context.Context, p *models.Participant) error
	Participant(ctx context.Context, id string) (*models.Participant, error)
	ParticipantsBySession(ctx context.Context, sessionID string) ([]models.Participant, error)
	TouchParticipant(ctx context.Context, id string, seen time.Time) error
	SetParticipantConnected(ctx context.Context, id string, connected bool, seen time.Time) error

	CreateRound(ctx context.Context, r *models.Round) error
	NextRoundIndex(ctx context.Context, sessionID string) (int, error)
	Round(ctx context.Context, id string) (*models.Round, error)
	RoundByIndex(ctx context.Context, sessionID string, index int) (*models.Round, error)
	SaveRound(ctx context.Context, r *models.Round) error
	CurrentRound(ctx context.Context, sessionID string) (*models.Round, error)
	RoundsBySession(ctx context.Context, sessionID string) ([]models.Round, error)

	UpsertMetrics(ctx context.Context, m *models.Metrics) error
	MetricsByRound(ctx context.Context, roundID string) ([]models.Metrics, error)

	UpsertVote(ctx context.Context, v *models.Vote) error
	VoteStatsByRound(ctx context.Context, roundID string) (map[string]VoteStats, error)

	SessionStats(ctx context.Context, sessionID string) (*SessionStats, error)
}
