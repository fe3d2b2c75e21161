package types

// Wire messages for the /ws endpoint. Every frame is a JSON object with a
// "type" discriminator.

// ClientMessage is the inbound envelope. Clients send one of:
// "register", "telao_register", "token", "complete", "error".
// Fields not used by a given type are left zero.
type ClientMessage struct {
	Type string `json:"type"`

	// register
	ParticipantID string `json:"participant_id,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	PIN           string `json:"pin,omitempty"`
	Runner        string `json:"runner,omitempty"`
	Model         string `json:"model,omitempty"`

	// token / complete / error
	Round   int    `json:"round,omitempty"`
	Seq     int    `json:"seq,omitempty"`
	Content string `json:"content,omitempty"`

	// complete
	Tokens              int            `json:"tokens,omitempty"`
	LatencyMsFirstToken *int           `json:"latency_ms_first_token,omitempty"`
	DurationMs          int            `json:"duration_ms,omitempty"`
	ModelInfo           map[string]any `json:"model_info,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// RegisteredMessage acknowledges a successful register.
type RegisteredMessage struct {
	Type      string `json:"type"` // "registered"
	SessionID string `json:"session_id"`
}

// TelaoRegisteredMessage acknowledges a display client.
type TelaoRegisteredMessage struct {
	Type string `json:"type"` // "telao_registered"
}

// ChallengeMessage is broadcast when a round starts.
type ChallengeMessage struct {
	Type        string  `json:"type"` // "challenge"
	SessionID   string  `json:"session_id"`
	Round       int     `json:"round"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	DeadlineMs  int     `json:"deadline_ms"`
	Seed        *int    `json:"seed,omitempty"`
}

// TokenUpdateMessage is broadcast for every accepted token.
type TokenUpdateMessage struct {
	Type          string `json:"type"` // "token_update"
	ParticipantID string `json:"participant_id"`
	Round         int    `json:"round"`
	Seq           int    `json:"seq"`
	Content       string `json:"content"`
	TotalTokens   int    `json:"total_tokens"`
}

// CompletionMessage is broadcast when a participant finishes a round.
type CompletionMessage struct {
	Type          string `json:"type"` // "completion"
	ParticipantID string `json:"participant_id"`
	Round         int    `json:"round"`
	Tokens        int    `json:"tokens"`
	DurationMs    int    `json:"duration_ms"`
}

// HeartbeatMessage is broadcast on a fixed interval. Ts is unix millis.
type HeartbeatMessage struct {
	Type string `json:"type"` // "heartbeat"
	Ts   int64  `json:"ts"`
}

// ParticipantRegisteredMessage announces a (re)registered participant.
type ParticipantRegisteredMessage struct {
	Type        string          `json:"type"` // "participant_registered"
	Participant ParticipantInfo `json:"participant"`
}

// ParticipantDisconnectedMessage announces a dropped participant.
type ParticipantDisconnectedMessage struct {
	Type          string `json:"type"` // "participant_disconnected"
	ParticipantID string `json:"participant_id"`
	Ts            int64  `json:"ts"`
}

// ParticipantInfo is the participant shape embedded in broadcasts.
type ParticipantInfo struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Runner    string `json:"runner"`
	Model     string `json:"model"`
	Connected bool   `json:"connected"`
	LastSeen  string `json:"last_seen"`
}

// ErrorMessage is sent to a single client on a rejected inbound frame.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
