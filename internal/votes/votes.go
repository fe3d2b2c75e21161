package votes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/gambiarra/arena-backend/internal/models"
	"github.com/gambiarra/arena-backend/internal/store"
)

var ErrInvalidScore = errors.New("score must be between 1 and 5")
var ErrRoundNotFound = errors.New("round not found")

// Entry is one scoreboard row. Token fields are nil for participants who
// have votes but no finalized metrics.
type Entry struct {
	ParticipantID string   `json:"participant_id"`
	Nickname      string   `json:"nickname"`
	Runner        string   `json:"runner"`
	Model         string   `json:"model"`
	Tokens        *int     `json:"tokens"`
	DurationMs    *int     `json:"duration_ms"`
	TpsAvg        *float64 `json:"tps_avg"`
	VoteCount     int      `json:"vote_count"`
	AvgScore      float64  `json:"avg_score"`
	TotalScore    float64  `json:"total_score"`
}

// Manager tallies votes and builds scoreboards.
type Manager struct {
	store store.Store
}

func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// HashVoter reduces a voter's network origin to a stable, non-reversible
// identity.
func HashVoter(voterID string) string {
	sum := sha256.Sum256([]byte(voterID))
	return hex.EncodeToString(sum[:])
}

// Cast records a score. A second vote from the same (voter, round,
// participant) overwrites the first.
func (m *Manager) Cast(ctx context.Context, roundID, voterID, participantID string, score int) (*models.Vote, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}

	if _, err := m.store.Round(ctx, roundID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}

	vote := &models.Vote{
		RoundID:       roundID,
		VoterHash:     HashVoter(voterID),
		ParticipantID: participantID,
		Score:         score,
	}
	if err := m.store.UpsertVote(ctx, vote); err != nil {
		return nil, fmt.Errorf("failed to save vote: %w", err)
	}
	return vote, nil
}

// Scoreboard ranks every participant with at least one vote or one metrics
// record in the round. totalScore = avgScore * voteCount, so high approval
// with more votes beats a higher average on fewer votes. Ties break by
// avgScore, then participant id.
func (m *Manager) Scoreboard(ctx context.Context, roundID string) ([]Entry, error) {
	round, err := m.store.Round(ctx, roundID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}

	participants, err := m.store.ParticipantsBySession(ctx, round.SessionID)
	if err != nil {
		return nil, err
	}
	metrics, err := m.store.MetricsByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	stats, err := m.store.VoteStatsByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	metricsByParticipant := make(map[string]models.Metrics, len(metrics))
	for _, mt := range metrics {
		metricsByParticipant[mt.ParticipantID] = mt
	}

	var entries []Entry
	for _, p := range participants {
		mt, hasMetrics := metricsByParticipant[p.ID]
		vs, hasVotes := stats[p.ID]
		if !hasMetrics && !hasVotes {
			continue
		}

		entry := Entry{
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			Runner:        p.Runner,
			Model:         p.Model,
			VoteCount:     vs.Count,
			AvgScore:      vs.Avg,
			TotalScore:    vs.Avg * float64(vs.Count),
		}
		if hasMetrics {
			tokens := mt.Tokens
			duration := mt.DurationMs
			entry.Tokens = &tokens
			entry.DurationMs = &duration
			entry.TpsAvg = mt.TpsAvg
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if entries[i].AvgScore != entries[j].AvgScore {
			return entries[i].AvgScore > entries[j].AvgScore
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	return entries, nil
}
