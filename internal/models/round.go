package models

import "time"

// Round is one timed challenge. Index is 1-based and monotonically
// increasing within a session. Prompt and parameters are immutable once
// created; lifecycle state is derived from the start/end timestamps.
type Round struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	SessionID   string     `gorm:"size:36;not null;index" json:"session_id"`
	Index       int        `gorm:"not null" json:"index"`
	Prompt      string     `gorm:"not null" json:"prompt"`
	MaxTokens   int        `gorm:"not null;default:400" json:"max_tokens"`
	Temperature float64    `gorm:"not null;default:0.8" json:"temperature"`
	DeadlineMs  int        `gorm:"not null;default:90000" json:"deadline_ms"`
	Seed        *int       `json:"seed"`
	StartedAt   *time.Time `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

const (
	RoundStatePending = "pending"
	RoundStateActive  = "active"
	RoundStateEnded   = "ended"
)

// State derives the lifecycle state from the timestamps.
func (r *Round) State() string {
	switch {
	case r.EndedAt != nil:
		return RoundStateEnded
	case r.StartedAt != nil:
		return RoundStateActive
	default:
		return RoundStatePending
	}
}
