package rounds

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gambiarra/arena-backend/internal/hub"
	"github.com/gambiarra/arena-backend/internal/models"
	"github.com/gambiarra/arena-backend/internal/store"
)

type fixture struct {
	manager *Manager
	store   store.Store
	hub     *hub.Hub
	session *models.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemory()
	session := &models.Session{PinHash: "x", Status: models.SessionStatusActive}
	require.NoError(t, st.CreateSession(ctx, session))

	h := hub.NewHub(ctx, zap.NewNop(), time.Hour)
	return &fixture{
		manager: NewManager(st, h, zap.NewNop()),
		store:   st,
		hub:     h,
		session: session,
	}
}

func (f *fixture) createRound(t *testing.T, prompt string) *models.Round {
	t.Helper()
	round, err := f.manager.Create(context.Background(), CreateParams{
		SessionID:   f.session.ID,
		Prompt:      prompt,
		MaxTokens:   400,
		Temperature: 0.8,
		DeadlineMs:  90000,
	})
	require.NoError(t, err)
	return round
}

func TestCreate_AssignsSequentialIndexes(t *testing.T) {
	f := newFixture(t)

	r1 := f.createRound(t, "first")
	r2 := f.createRound(t, "second")

	assert.Equal(t, 1, r1.Index)
	assert.Equal(t, 2, r2.Index)
	assert.Equal(t, models.RoundStatePending, r1.State())
}

func TestCreate_RequiresActiveSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Create(context.Background(), CreateParams{
		SessionID: "not-the-active-one",
		Prompt:    "p",
	})
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestStart_BroadcastsChallenge(t *testing.T) {
	f := newFixture(t)
	round := f.createRound(t, "write a haiku")

	out := make(chan []byte, 4)
	f.hub.Inbox() <- hub.Join{ConnID: "c1", Outbox: out}

	started, err := f.manager.Start(context.Background(), round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStateActive, started.State())

	select {
	case payload := <-out:
		var msg struct {
			Type      string `json:"type"`
			Round     int    `json:"round"`
			Prompt    string `json:"prompt"`
			MaxTokens int    `json:"max_tokens"`
		}
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, "challenge", msg.Type)
		assert.Equal(t, 1, msg.Round)
		assert.Equal(t, "write a haiku", msg.Prompt)
		assert.Equal(t, 400, msg.MaxTokens)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for challenge broadcast")
	}
}

func TestStart_TwiceFails(t *testing.T) {
	f := newFixture(t)
	round := f.createRound(t, "p")

	_, err := f.manager.Start(context.Background(), round.ID)
	require.NoError(t, err)

	_, err = f.manager.Start(context.Background(), round.ID)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	// The failed call did not disturb the round.
	got, err := f.manager.Get(context.Background(), round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStateActive, got.State())
	assert.Nil(t, got.EndedAt)
}

func TestStop_BeforeStartFails(t *testing.T) {
	f := newFixture(t)
	round := f.createRound(t, "p")

	_, err := f.manager.Stop(context.Background(), round.ID)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestStop_TwiceFails(t *testing.T) {
	f := newFixture(t)
	round := f.createRound(t, "p")

	_, err := f.manager.Start(context.Background(), round.ID)
	require.NoError(t, err)
	_, err = f.manager.Stop(context.Background(), round.ID)
	require.NoError(t, err)

	_, err = f.manager.Stop(context.Background(), round.ID)
	assert.ErrorIs(t, err, ErrAlreadyEnded)
}

func TestStartStop_UnknownRound(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Start(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRoundNotFound)
	_, err = f.manager.Stop(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	current, err := f.manager.Current(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Nil(t, current)

	round := f.createRound(t, "p")
	_, err = f.manager.Start(ctx, round.ID)
	require.NoError(t, err)

	current, err = f.manager.Current(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, round.ID, current.ID)

	_, err = f.manager.Stop(ctx, round.ID)
	require.NoError(t, err)

	current, err = f.manager.Current(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Nil(t, current)
}
