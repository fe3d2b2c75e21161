package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gambiarra/arena-backend/internal/hub"
	"github.com/gambiarra/arena-backend/internal/models"
	"github.com/gambiarra/arena-backend/internal/store"
	"github.com/gambiarra/arena-backend/internal/stream"
	"github.com/gambiarra/arena-backend/pkg/types"
)

const writeTimeout = 3 * time.Second

// Deps are the collaborators the websocket endpoint routes into. Verify
// checks a registration PIN against the session's stored hash.
type Deps struct {
	Hub    *hub.Hub
	Store  store.Store
	Buffer *stream.Buffer
	Verify func(pin, hash string) bool
	Log    *zap.Logger
}

// Handler accepts a websocket connection and runs its read loop. One
// message is processed to completion before the next is read; messages
// from different connections interleave freely.
func Handler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// LAN deployment, displays and clients come from anywhere.
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		out := make(chan []byte, 32)

		d.Hub.Inbox() <- hub.Join{ConnID: connID, Outbox: out}
		defer func() { d.Hub.Inbox() <- hub.Leave{ConnID: connID} }()

		// Writer goroutine drains the hub outbox.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for payload := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		c := &client{deps: d, conn: conn, connID: connID}
		defer c.disconnected()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var msg types.ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.sendError(r.Context(), "bad json")
				continue
			}
			c.route(r.Context(), msg)
		}
	}
}

// client is the per-connection protocol state. participantID is set once a
// register succeeds.
type client struct {
	deps          Deps
	conn          *websocket.Conn
	connID        string
	participantID string
	sessionID     string
	telao         bool
}

func (c *client) route(ctx context.Context, msg types.ClientMessage) {
	switch msg.Type {
	case "register":
		c.handleRegister(ctx, msg)
	case "telao_register":
		c.telao = true
		c.send(ctx, types.TelaoRegisteredMessage{Type: "telao_registered"})
	case "token":
		c.handleToken(ctx, msg)
	case "complete":
		c.handleComplete(ctx, msg)
	case "error":
		c.deps.Log.Warn("client reported error",
			zap.String("participant_id", msg.ParticipantID),
			zap.Int("round", msg.Round),
			zap.String("code", msg.Code),
			zap.String("message", msg.Message))
	default:
		c.sendError(ctx, "unknown type")
	}
}

func (c *client) handleRegister(ctx context.Context, msg types.ClientMessage) {
	if msg.ParticipantID == "" || msg.Nickname == "" || msg.PIN == "" ||
		msg.Runner == "" || msg.Model == "" {
		c.sendError(ctx, "invalid register")
		return
	}

	session, err := c.deps.Store.ActiveSession(ctx)
	if err != nil {
		c.sendError(ctx, "No active session")
		return
	}
	if !c.deps.Verify(msg.PIN, session.PinHash) {
		c.sendError(ctx, "Invalid PIN")
		return
	}

	participant, err := c.deps.Store.Participant(ctx, msg.ParticipantID)
	now := time.Now()
	if err != nil {
		participant = &models.Participant{ID: msg.ParticipantID}
	}
	participant.SessionID = session.ID
	participant.Nickname = msg.Nickname
	participant.Runner = msg.Runner
	participant.Model = msg.Model
	participant.Connected = true
	participant.LastSeen = now
	if err := c.deps.Store.UpsertParticipant(ctx, participant); err != nil {
		c.deps.Log.Error("participant upsert failed", zap.Error(err))
		c.sendError(ctx, "registration failed")
		return
	}

	reply := make(chan error, 1)
	c.deps.Hub.Inbox() <- hub.Bind{
		ConnID:        c.connID,
		ParticipantID: msg.ParticipantID,
		SessionID:     session.ID,
		Reply:         reply,
	}
	if err := <-reply; err != nil {
		c.deps.Log.Warn("bind rejected", zap.String("conn_id", c.connID), zap.Error(err))
		c.sendError(ctx, "already registered")
		return
	}
	c.participantID = msg.ParticipantID
	c.sessionID = session.ID

	c.send(ctx, types.RegisteredMessage{Type: "registered", SessionID: session.ID})

	c.deps.Hub.BroadcastJSON(types.ParticipantRegisteredMessage{
		Type: "participant_registered",
		Participant: types.ParticipantInfo{
			ID:        participant.ID,
			Nickname:  participant.Nickname,
			Runner:    participant.Runner,
			Model:     participant.Model,
			Connected: true,
			LastSeen:  participant.LastSeen.UTC().Format(time.RFC3339),
		},
	})
}

func (c *client) handleToken(ctx context.Context, msg types.ClientMessage) {
	if c.participantID == "" || msg.ParticipantID != c.participantID {
		c.sendError(ctx, "not registered")
		return
	}

	total, err := c.deps.Buffer.Append(c.participantID, msg.Round, msg.Seq, msg.Content)
	if err != nil {
		// Gap or replay: drop the frame, keep the stream gap-free.
		c.deps.Log.Warn("token dropped",
			zap.String("participant_id", c.participantID),
			zap.Int("round", msg.Round),
			zap.Error(err))
		return
	}

	if err := c.deps.Store.TouchParticipant(ctx, c.participantID, time.Now()); err != nil {
		c.deps.Log.Error("last_seen update failed", zap.Error(err))
	}

	c.deps.Hub.BroadcastJSON(types.TokenUpdateMessage{
		Type:          "token_update",
		ParticipantID: c.participantID,
		Round:         msg.Round,
		Seq:           msg.Seq,
		Content:       msg.Content,
		TotalTokens:   total,
	})
}

func (c *client) handleComplete(ctx context.Context, msg types.ClientMessage) {
	if c.participantID == "" || msg.ParticipantID != c.participantID {
		c.sendError(ctx, "not registered")
		return
	}

	var tps *float64
	if msg.DurationMs > 0 {
		v := float64(msg.Tokens) / float64(msg.DurationMs) * 1000
		tps = &v
	}

	// Persistence failures are logged and swallowed; the buffered stream
	// and the broadcast are unaffected.
	if round, err := c.deps.Store.RoundByIndex(ctx, c.sessionID, msg.Round); err != nil {
		c.deps.Log.Error("metrics round lookup failed",
			zap.Int("round", msg.Round), zap.Error(err))
	} else {
		modelInfo := ""
		if msg.ModelInfo != nil {
			if raw, err := json.Marshal(msg.ModelInfo); err == nil {
				modelInfo = string(raw)
			}
		}
		metrics := &models.Metrics{
			RoundID:             round.ID,
			ParticipantID:       c.participantID,
			Tokens:              msg.Tokens,
			LatencyFirstTokenMs: msg.LatencyMsFirstToken,
			DurationMs:          msg.DurationMs,
			TpsAvg:              tps,
			ModelInfo:           modelInfo,
		}
		if err := c.deps.Store.UpsertMetrics(ctx, metrics); err != nil {
			c.deps.Log.Error("metrics upsert failed", zap.Error(err))
		}
	}

	c.deps.Hub.BroadcastJSON(types.CompletionMessage{
		Type:          "completion",
		ParticipantID: c.participantID,
		Round:         msg.Round,
		Tokens:        msg.Tokens,
		DurationMs:    msg.DurationMs,
	})
}

// disconnected runs after the read loop exits. Token state stays buffered
// so a reconnect resumes bookkeeping.
func (c *client) disconnected() {
	if c.participantID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.deps.Store.SetParticipantConnected(ctx, c.participantID, false, time.Now()); err != nil {
		c.deps.Log.Error("disconnect update failed", zap.Error(err))
	}
	c.deps.Hub.BroadcastJSON(types.ParticipantDisconnectedMessage{
		Type:          "participant_disconnected",
		ParticipantID: c.participantID,
		Ts:            time.Now().UnixMilli(),
	})
}

func (c *client) send(ctx context.Context, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = c.conn.Write(wctx, websocket.MessageText, payload)
}

func (c *client) sendError(ctx context.Context, message string) {
	c.send(ctx, types.ErrorMessage{Type: "error", Message: message})
}
