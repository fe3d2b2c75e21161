package models

import "time"

// Participant is a competing client. The ID is client-supplied and unique
// within a session.
type Participant struct {
	ID        string    `gorm:"primaryKey;size:100" json:"id"`
	SessionID string    `gorm:"size:36;not null;index" json:"session_id"`
	Nickname  string    `gorm:"size:100;not null" json:"nickname"`
	Runner    string    `gorm:"size:50;not null" json:"runner"`
	Model     string    `gorm:"size:100;not null" json:"model"`
	Connected bool      `gorm:"not null;default:true" json:"connected"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}
