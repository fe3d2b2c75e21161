package models

import "time"

type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PinHash   string    `gorm:"not null" json:"-"`
	Status    string    `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)
