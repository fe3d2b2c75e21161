package models

import "time"

// Metrics holds finalized per-(round, participant) generation counters.
// Exactly one row per pair; a re-submitted complete overwrites it.
type Metrics struct {
	ID                  string    `gorm:"primaryKey;size:36" json:"id"`
	RoundID             string    `gorm:"size:36;not null;uniqueIndex:uq_metrics_round_participant" json:"round_id"`
	ParticipantID       string    `gorm:"size:100;not null;uniqueIndex:uq_metrics_round_participant" json:"participant_id"`
	Tokens              int       `gorm:"not null" json:"tokens"`
	LatencyFirstTokenMs *int      `json:"latency_first_token_ms"`
	DurationMs          int       `gorm:"not null" json:"duration_ms"`
	TpsAvg              *float64  `json:"tps_avg"`
	ModelInfo           string    `json:"model_info,omitempty"` // JSON blob
	CreatedAt           time.Time `json:"created_at"`
}
