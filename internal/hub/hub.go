package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gambiarra/arena-backend/pkg/types"
)

// ErrDuplicateBinding is returned when a connection that is already bound
// to a participant tries to bind again.
var ErrDuplicateBinding = errors.New("connection already bound")

// ErrUnknownConnection is returned when binding a connection that never
// joined (or already left).
var ErrUnknownConnection = errors.New("unknown connection")

type Msg interface{ isHubMsg() }

// Join registers a live transport connection. Outbox is where the hub
// writes serialized frames for this connection.
type Join struct {
	ConnID string
	Outbox chan []byte
}

// Bind ties a joined connection to a participant identity. A participant
// already bound elsewhere loses its old connection (last one wins).
type Bind struct {
	ConnID        string
	ParticipantID string
	SessionID     string
	Reply         chan error
}

// Leave drops a connection. Idempotent.
type Leave struct{ ConnID string }

// Broadcast fans a pre-serialized frame out to every live connection.
type Broadcast struct{ Payload []byte }

// GetView reflects internal state without data races. Test-only.
type GetView struct{ Reply chan View }

type Shutdown struct{}

func (Join) isHubMsg()      {}
func (Bind) isHubMsg()      {}
func (Leave) isHubMsg()     {}
func (Broadcast) isHubMsg() {}
func (GetView) isHubMsg()   {}
func (Shutdown) isHubMsg()  {}

// View is a point-in-time copy of the registry.
type View struct {
	NumConns int
	Bound    map[string]string // connID -> participantID
}

type conn struct {
	outbox        chan []byte
	participantID string
	sessionID     string
}

// Hub owns the connection registry. All mutations go through the inbox and
// are applied by a single loop goroutine; broadcast never blocks the loop,
// a slow connection is dropped instead.
type Hub struct {
	inbox          chan Msg
	conns          map[string]*conn
	heartbeatEvery time.Duration
	log            *zap.Logger
	ctx            context.Context
	cancel         context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger, heartbeatEvery time.Duration) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:          make(chan Msg, 64),
		conns:          make(map[string]*conn),
		heartbeatEvery: heartbeatEvery,
		log:            log,
		ctx:            ctx,
		cancel:         cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// BroadcastJSON serializes v once and fans it out.
func (h *Hub) BroadcastJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error("broadcast marshal failed", zap.Error(err))
		return
	}
	select {
	case h.inbox <- Broadcast{Payload: payload}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) loop() {
	ticker := time.NewTicker(h.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-ticker.C:
			payload, err := json.Marshal(types.HeartbeatMessage{
				Type: "heartbeat",
				Ts:   time.Now().UnixMilli(),
			})
			if err != nil {
				h.log.Error("heartbeat marshal failed", zap.Error(err))
				break
			}
			h.broadcast(payload)

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.conns[msg.ConnID] = &conn{outbox: msg.Outbox}

			case Bind:
				msg.Reply <- h.bind(msg)

			case Leave:
				if c, ok := h.conns[msg.ConnID]; ok {
					close(c.outbox)
					delete(h.conns, msg.ConnID)
				}

			case Broadcast:
				h.broadcast(msg.Payload)

			case GetView:
				view := View{NumConns: len(h.conns), Bound: make(map[string]string)}
				for id, c := range h.conns {
					if c.participantID != "" {
						view.Bound[id] = c.participantID
					}
				}
				msg.Reply <- view

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) bind(msg Bind) error {
	c, ok := h.conns[msg.ConnID]
	if !ok {
		return ErrUnknownConnection
	}
	if c.participantID != "" {
		return ErrDuplicateBinding
	}

	// A reconnecting participant replaces its stale connection.
	for id, other := range h.conns {
		if id != msg.ConnID && other.participantID == msg.ParticipantID {
			h.log.Info("replacing stale connection",
				zap.String("participant_id", msg.ParticipantID),
				zap.String("conn_id", id))
			close(other.outbox)
			delete(h.conns, id)
		}
	}

	c.participantID = msg.ParticipantID
	c.sessionID = msg.SessionID
	return nil
}

func (h *Hub) broadcast(payload []byte) {
	for id, c := range h.conns {
		select {
		case c.outbox <- payload:
			// ok
		default:
			// Slow or gone - drop it so the rest still get the frame.
			h.log.Warn("dropping slow connection", zap.String("conn_id", id))
			close(c.outbox)
			delete(h.conns, id)
		}
	}
}

func (h *Hub) shutdown() {
	for id, c := range h.conns {
		close(c.outbox)
		delete(h.conns, id)
	}
	h.cancel()
}
