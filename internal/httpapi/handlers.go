package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gambiarra/arena-backend/internal/auth"
	"github.com/gambiarra/arena-backend/internal/hub"
	"github.com/gambiarra/arena-backend/internal/metrics"
	"github.com/gambiarra/arena-backend/internal/models"
	"github.com/gambiarra/arena-backend/internal/rounds"
	"github.com/gambiarra/arena-backend/internal/store"
	"github.com/gambiarra/arena-backend/internal/stream"
	"github.com/gambiarra/arena-backend/internal/votes"
)

// Deps is everything the control plane delegates to.
type Deps struct {
	Hub       *hub.Hub
	Store     store.Store
	Buffer    *stream.Buffer
	Rounds    *rounds.Manager
	Votes     *votes.Manager
	Metrics   *metrics.Manager
	PinLength int
	Log       *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type sessionResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Status    string `json:"status"`
	Pin       string `json:"pin,omitempty"` // only on creation
}

// CreateSession ends any active session and opens a fresh one. The
// plaintext PIN appears in this response and nowhere else.
func CreateSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := d.Store.EndActiveSessions(ctx); err != nil {
			d.Log.Error("failed to end sessions", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		// Buffered streams belong to the old session.
		d.Buffer.Reset()

		pin, err := auth.GeneratePIN(d.PinLength)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate pin")
			return
		}
		hash, err := auth.HashPIN(pin)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to hash pin")
			return
		}

		session := &models.Session{PinHash: hash, Status: models.SessionStatusActive}
		if err := d.Store.CreateSession(ctx, session); err != nil {
			d.Log.Error("failed to create session", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		d.Log.Info("session created", zap.String("session_id", session.ID))
		writeJSON(w, http.StatusCreated, sessionResponse{
			ID:        session.ID,
			CreatedAt: session.CreatedAt.UTC().Format(time.RFC3339),
			Status:    session.Status,
			Pin:       pin,
		})
	}
}

func GetSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := d.Store.ActiveSession(r.Context())
		if err != nil {
			writeError(w, http.StatusNotFound, "No active session")
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

type createRoundRequest struct {
	SessionID   string   `json:"session_id"`
	Prompt      string   `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	DeadlineMs  *int     `json:"deadline_ms"`
	Seed        *int     `json:"seed"`
}

func CreateRound(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if req.SessionID == "" || req.Prompt == "" {
			writeError(w, http.StatusBadRequest, "session_id and prompt are required")
			return
		}

		params := rounds.CreateParams{
			SessionID:   req.SessionID,
			Prompt:      req.Prompt,
			MaxTokens:   400,
			Temperature: 0.8,
			DeadlineMs:  90000,
			Seed:        req.Seed,
		}
		if req.MaxTokens != nil {
			params.MaxTokens = *req.MaxTokens
		}
		if req.Temperature != nil {
			params.Temperature = *req.Temperature
		}
		if req.DeadlineMs != nil {
			params.DeadlineMs = *req.DeadlineMs
		}
		if params.MaxTokens < 1 || params.Temperature < 0 || params.Temperature > 2 || params.DeadlineMs < 0 {
			writeError(w, http.StatusBadRequest, "invalid round parameters")
			return
		}

		round, err := d.Rounds.Create(r.Context(), params)
		if errors.Is(err, rounds.ErrSessionNotActive) {
			writeError(w, http.StatusNotFound, "session not active")
			return
		}
		if err != nil {
			d.Log.Error("failed to create round", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create round")
			return
		}
		writeJSON(w, http.StatusCreated, round)
	}
}

type roundIDRequest struct {
	RoundID string `json:"round_id"`
}

// StartRound enforces the one-active-round invariant before delegating:
// the lifecycle manager itself only checks the target round's own state.
func StartRound(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roundIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoundID == "" {
			writeError(w, http.StatusBadRequest, "round_id is required")
			return
		}
		ctx := r.Context()

		round, err := d.Rounds.Get(ctx, req.RoundID)
		if errors.Is(err, rounds.ErrRoundNotFound) {
			writeError(w, http.StatusNotFound, "round not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to start round")
			return
		}

		current, err := d.Rounds.Current(ctx, round.SessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to start round")
			return
		}
		if current != nil && current.ID != round.ID {
			writeError(w, http.StatusConflict, "another round is active")
			return
		}

		started, err := d.Rounds.Start(ctx, req.RoundID)
		switch {
		case errors.Is(err, rounds.ErrAlreadyStarted):
			writeError(w, http.StatusBadRequest, "round already started")
			return
		case err != nil:
			d.Log.Error("failed to start round", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start round")
			return
		}
		writeJSON(w, http.StatusOK, started)
	}
}

func StopRound(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roundIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoundID == "" {
			writeError(w, http.StatusBadRequest, "round_id is required")
			return
		}

		round, err := d.Rounds.Stop(r.Context(), req.RoundID)
		switch {
		case errors.Is(err, rounds.ErrRoundNotFound):
			writeError(w, http.StatusNotFound, "round not found")
			return
		case errors.Is(err, rounds.ErrNotStarted):
			writeError(w, http.StatusBadRequest, "round not started")
			return
		case errors.Is(err, rounds.ErrAlreadyEnded):
			writeError(w, http.StatusBadRequest, "round already ended")
			return
		case err != nil:
			d.Log.Error("failed to stop round", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to stop round")
			return
		}
		writeJSON(w, http.StatusOK, round)
	}
}

type currentRoundResponse struct {
	Round  *models.Round       `json:"round"`
	Tokens map[string][]string `json:"tokens"`
}

func CurrentRound(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session, err := d.Store.ActiveSession(ctx)
		if err != nil {
			writeError(w, http.StatusNotFound, "No active session")
			return
		}
		round, err := d.Rounds.Current(ctx, session.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get current round")
			return
		}
		if round == nil {
			writeError(w, http.StatusNotFound, "No current round")
			return
		}
		writeJSON(w, http.StatusOK, currentRoundResponse{
			Round:  round,
			Tokens: d.Buffer.SnapshotRound(round.Index),
		})
	}
}

type castVoteRequest struct {
	RoundID       string `json:"round_id"`
	ParticipantID string `json:"participant_id"`
	Score         int    `json:"score"`
}

func CastVote(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req castVoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if req.RoundID == "" || req.ParticipantID == "" {
			writeError(w, http.StatusBadRequest, "round_id and participant_id are required")
			return
		}

		// The voter identity is the request origin, hashed downstream.
		voterID, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			voterID = r.RemoteAddr
		}

		vote, err := d.Votes.Cast(r.Context(), req.RoundID, voterID, req.ParticipantID, req.Score)
		switch {
		case errors.Is(err, votes.ErrInvalidScore):
			writeError(w, http.StatusBadRequest, "score must be between 1 and 5")
			return
		case errors.Is(err, votes.ErrRoundNotFound):
			writeError(w, http.StatusNotFound, "round not found")
			return
		case err != nil:
			d.Log.Error("failed to cast vote", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to cast vote")
			return
		}
		writeJSON(w, http.StatusOK, vote)
	}
}

type scoreboardResponse struct {
	RoundID    string        `json:"round_id"`
	RoundIndex int           `json:"round_index"`
	Entries    []votes.Entry `json:"entries"`
}

func Scoreboard(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session, err := d.Store.ActiveSession(ctx)
		if err != nil {
			writeError(w, http.StatusNotFound, "No active session")
			return
		}
		round, err := d.Rounds.Current(ctx, session.ID)
		if err != nil || round == nil {
			writeError(w, http.StatusNotFound, "No current round")
			return
		}

		entries, err := d.Votes.Scoreboard(ctx, round.ID)
		if err != nil {
			d.Log.Error("failed to build scoreboard", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to build scoreboard")
			return
		}
		writeJSON(w, http.StatusOK, scoreboardResponse{
			RoundID:    round.ID,
			RoundIndex: round.Index,
			Entries:    entries,
		})
	}
}

func SessionMetrics(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session, err := d.Store.ActiveSession(ctx)
		if err != nil {
			writeError(w, http.StatusNotFound, "No active session")
			return
		}
		stats, err := d.Metrics.SessionStats(ctx, session.ID)
		if err != nil {
			d.Log.Error("failed to aggregate metrics", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to aggregate metrics")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func ExportCSV(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session, err := d.Store.ActiveSession(ctx)
		if err != nil {
			writeError(w, http.StatusNotFound, "No active session")
			return
		}
		data, err := d.Metrics.ExportCSV(ctx, session.ID)
		if err != nil {
			d.Log.Error("failed to export csv", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to export csv")
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="session_%s.csv"`, session.ID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

type kickRequest struct {
	ParticipantID string `json:"participant_id"`
}

func KickParticipant(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req kickRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParticipantID == "" {
			writeError(w, http.StatusBadRequest, "participant_id is required")
			return
		}

		err := d.Store.SetParticipantConnected(r.Context(), req.ParticipantID, false, time.Now())
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "participant not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to kick participant")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
