package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/gambiarra/arena-backend/internal/models"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store Store
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewMemory()
}

func (s *MemoryStoreSuite) newActiveSession() *models.Session {
	session := &models.Session{PinHash: "h", Status: models.SessionStatusActive}
	s.Require().NoError(s.store.CreateSession(s.ctx, session))
	return session
}

func (s *MemoryStoreSuite) TestActiveSession_LatestWins() {
	_, err := s.store.ActiveSession(s.ctx)
	s.ErrorIs(err, ErrNotFound)

	first := &models.Session{PinHash: "h", Status: models.SessionStatusActive, CreatedAt: time.Now().Add(-time.Minute)}
	s.Require().NoError(s.store.CreateSession(s.ctx, first))
	second := s.newActiveSession()

	active, err := s.store.ActiveSession(s.ctx)
	s.Require().NoError(err)
	s.Equal(second.ID, active.ID)
}

func (s *MemoryStoreSuite) TestEndActiveSessions() {
	s.newActiveSession()
	s.newActiveSession()

	s.Require().NoError(s.store.EndActiveSessions(s.ctx))

	_, err := s.store.ActiveSession(s.ctx)
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestUpsertParticipant_OverwritesKeepingCreatedAt() {
	session := s.newActiveSession()

	p := &models.Participant{ID: "p1", SessionID: session.ID, Nickname: "alpha", Connected: true}
	s.Require().NoError(s.store.UpsertParticipant(s.ctx, p))
	created := p.CreatedAt
	s.False(created.IsZero())

	update := &models.Participant{ID: "p1", SessionID: session.ID, Nickname: "beta", Runner: "ollama"}
	s.Require().NoError(s.store.UpsertParticipant(s.ctx, update))

	got, err := s.store.Participant(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal("beta", got.Nickname)
	s.Equal("ollama", got.Runner)
	s.False(got.Connected, "upsert replaces, it does not merge")
	s.Equal(created, got.CreatedAt)
}

func (s *MemoryStoreSuite) TestTouchParticipant() {
	session := s.newActiveSession()
	s.Require().NoError(s.store.UpsertParticipant(s.ctx, &models.Participant{ID: "p1", SessionID: session.ID}))

	seen := time.Now().Add(time.Hour)
	s.Require().NoError(s.store.TouchParticipant(s.ctx, "p1", seen))

	got, err := s.store.Participant(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal(seen, got.LastSeen)

	s.ErrorIs(s.store.TouchParticipant(s.ctx, "ghost", seen), ErrNotFound)
}

func (s *MemoryStoreSuite) TestNextRoundIndex() {
	session := s.newActiveSession()

	idx, err := s.store.NextRoundIndex(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(1, idx)

	s.Require().NoError(s.store.CreateRound(s.ctx, &models.Round{SessionID: session.ID, Index: 1, Prompt: "p"}))
	s.Require().NoError(s.store.CreateRound(s.ctx, &models.Round{SessionID: session.ID, Index: 2, Prompt: "p"}))

	idx, err = s.store.NextRoundIndex(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(3, idx)
}

func (s *MemoryStoreSuite) TestCurrentRound() {
	session := s.newActiveSession()

	_, err := s.store.CurrentRound(s.ctx, session.ID)
	s.ErrorIs(err, ErrNotFound)

	round := &models.Round{SessionID: session.ID, Index: 1, Prompt: "p"}
	s.Require().NoError(s.store.CreateRound(s.ctx, round))

	_, err = s.store.CurrentRound(s.ctx, session.ID)
	s.ErrorIs(err, ErrNotFound, "a round that never started is not current")

	now := time.Now()
	round.StartedAt = &now
	s.Require().NoError(s.store.SaveRound(s.ctx, round))

	current, err := s.store.CurrentRound(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(round.ID, current.ID)

	round.EndedAt = &now
	s.Require().NoError(s.store.SaveRound(s.ctx, round))

	_, err = s.store.CurrentRound(s.ctx, session.ID)
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestUpsertMetrics_OnePerRoundParticipant() {
	session := s.newActiveSession()
	round := &models.Round{SessionID: session.ID, Index: 1, Prompt: "p"}
	s.Require().NoError(s.store.CreateRound(s.ctx, round))

	s.Require().NoError(s.store.UpsertMetrics(s.ctx, &models.Metrics{
		RoundID: round.ID, ParticipantID: "p1", Tokens: 10, DurationMs: 500,
	}))
	s.Require().NoError(s.store.UpsertMetrics(s.ctx, &models.Metrics{
		RoundID: round.ID, ParticipantID: "p1", Tokens: 20, DurationMs: 900,
	}))

	all, err := s.store.MetricsByRound(s.ctx, round.ID)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(20, all[0].Tokens)
	s.Equal(900, all[0].DurationMs)
}

func (s *MemoryStoreSuite) TestVoteStats_RevoteReplaces() {
	session := s.newActiveSession()
	round := &models.Round{SessionID: session.ID, Index: 1, Prompt: "p"}
	s.Require().NoError(s.store.CreateRound(s.ctx, round))

	cast := func(voter, participant string, score int) {
		s.Require().NoError(s.store.UpsertVote(s.ctx, &models.Vote{
			RoundID: round.ID, VoterHash: voter, ParticipantID: participant, Score: score,
		}))
	}
	cast("v1", "p1", 2)
	cast("v1", "p1", 5)
	cast("v2", "p1", 3)
	cast("v1", "p2", 4)

	stats, err := s.store.VoteStatsByRound(s.ctx, round.ID)
	s.Require().NoError(err)
	s.Equal(VoteStats{Count: 2, Avg: 4.0}, stats["p1"])
	s.Equal(VoteStats{Count: 1, Avg: 4.0}, stats["p2"])
}

func (s *MemoryStoreSuite) TestReturnsCopies() {
	session := s.newActiveSession()
	s.Require().NoError(s.store.UpsertParticipant(s.ctx, &models.Participant{ID: "p1", SessionID: session.ID, Nickname: "alpha"}))

	got, err := s.store.Participant(s.ctx, "p1")
	s.Require().NoError(err)
	got.Nickname = "mutated"

	again, err := s.store.Participant(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal("alpha", again.Nickname)
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}
