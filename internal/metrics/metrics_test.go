package metrics

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gambiarra/arena-backend/internal/models"
	"github.com/gambiarra/arena-backend/internal/store"
)

func seed(t *testing.T) (*Manager, store.Store, *models.Session) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	session := &models.Session{PinHash: "x", Status: models.SessionStatusActive}
	require.NoError(t, st.CreateSession(ctx, session))

	return NewManager(st), st, session
}

func TestSessionStats(t *testing.T) {
	m, st, session := seed(t)
	ctx := context.Background()

	now := time.Now()
	ended := &models.Round{SessionID: session.ID, Index: 1, Prompt: "p1", StartedAt: &now, EndedAt: &now}
	require.NoError(t, st.CreateRound(ctx, ended))
	require.NoError(t, st.CreateRound(ctx, &models.Round{SessionID: session.ID, Index: 2, Prompt: "p2"}))

	require.NoError(t, st.UpsertParticipant(ctx, &models.Participant{ID: "p1", SessionID: session.ID, Nickname: "n"}))
	require.NoError(t, st.UpsertMetrics(ctx, &models.Metrics{RoundID: ended.ID, ParticipantID: "p1", Tokens: 42, DurationMs: 1000}))
	require.NoError(t, st.UpsertVote(ctx, &models.Vote{RoundID: ended.ID, VoterHash: "v", ParticipantID: "p1", Score: 5}))

	stats, err := m.SessionStats(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalRounds)
	assert.Equal(t, 1, stats.CompletedRounds)
	assert.Equal(t, 1, stats.TotalParticipants)
	assert.Equal(t, 42, stats.TotalTokens)
	assert.Equal(t, 1, stats.TotalVotes)
}

func TestExportCSV(t *testing.T) {
	m, st, session := seed(t)
	ctx := context.Background()

	round := &models.Round{SessionID: session.ID, Index: 1, Prompt: "p"}
	require.NoError(t, st.CreateRound(ctx, round))
	require.NoError(t, st.UpsertParticipant(ctx, &models.Participant{
		ID: "p1", SessionID: session.ID, Nickname: "alpha",
	}))

	latency := 120
	tps := 3.0
	require.NoError(t, st.UpsertMetrics(ctx, &models.Metrics{
		RoundID:             round.ID,
		ParticipantID:       "p1",
		Tokens:              3,
		LatencyFirstTokenMs: &latency,
		DurationMs:          1000,
		TpsAvg:              &tps,
	}))
	require.NoError(t, st.UpsertVote(ctx, &models.Vote{
		RoundID: round.ID, VoterHash: "v1", ParticipantID: "p1", Score: 4,
	}))

	data, err := m.ExportCSV(ctx, session.ID)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{
		"round", "participant_id", "nickname", "tokens",
		"latency_first_token_ms", "duration_ms", "tps_avg",
		"votes", "avg_score",
	}, rows[0])
	assert.Equal(t, []string{"1", "p1", "alpha", "3", "120", "1000", "3.00", "1", "4.00"}, rows[1])
}

func TestExportCSV_OptionalFieldsEmpty(t *testing.T) {
	m, st, session := seed(t)
	ctx := context.Background()

	round := &models.Round{SessionID: session.ID, Index: 1, Prompt: "p"}
	require.NoError(t, st.CreateRound(ctx, round))
	require.NoError(t, st.UpsertParticipant(ctx, &models.Participant{
		ID: "p1", SessionID: session.ID, Nickname: "alpha",
	}))
	require.NoError(t, st.UpsertMetrics(ctx, &models.Metrics{
		RoundID: round.ID, ParticipantID: "p1", Tokens: 0, DurationMs: 0,
	}))

	data, err := m.ExportCSV(ctx, session.ID)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "p1", "alpha", "0", "", "0", "", "0", ""}, rows[1])
}
