package models

import "time"

// Vote is one audience score in [1,5]. VoterHash is a sha256 of the voter's
// network origin; one live vote per (round, voter, participant).
type Vote struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	RoundID       string    `gorm:"size:36;not null;uniqueIndex:uq_vote_round_voter_participant" json:"round_id"`
	VoterHash     string    `gorm:"size:64;not null;uniqueIndex:uq_vote_round_voter_participant" json:"-"`
	ParticipantID string    `gorm:"size:100;not null;uniqueIndex:uq_vote_round_voter_participant" json:"participant_id"`
	Score         int       `gorm:"not null" json:"score"`
	CreatedAt     time.Time `json:"created_at"`
}
