package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gambiarra/arena-backend/internal/models"
)

// gormStore implements Store on a gorm database handle.
type gormStore struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.AutoMigrate(
		&models.Session{},
		&models.Participant{},
		&models.Round{},
		&models.Metrics{},
		&models.Vote{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return db, nil
}

// NewGorm wraps a gorm handle in a Store.
func NewGorm(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *gormStore) ActiveSession(ctx context.Context) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SessionStatusActive).
		Order("created_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return &session, nil
}

func (s *gormStore) EndActiveSessions(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("status = ?", models.SessionStatusActive).
		Update("status", models.SessionStatusEnded).Error
	if err != nil {
		return fmt.Errorf("failed to end active sessions: %w", err)
	}
	return nil
}

func (s *gormStore) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Participant
		err := tx.Where("id = ?", p.ID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(p).Error
		}
		if err != nil {
			return err
		}
		// Overwrite, keeping the original created_at.
		p.CreatedAt = existing.CreatedAt
		return tx.Save(p).Error
	})
}

func (s *gormStore) Participant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

func (s *gormStore) ParticipantsBySession(ctx context.Context, sessionID string) ([]models.Participant, error) {
	var out []models.Participant
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return out, nil
}

func (s *gormStore) TouchParticipant(ctx context.Context, id string, seen time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ?", id).
		Update("last_seen", seen)
	if res.Error != nil {
		return fmt.Errorf("failed to touch participant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) SetParticipantConnected(ctx context.Context, id string, connected bool, seen time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ?", id).
		Updates(map[string]any{"connected": connected, "last_seen": seen})
	if res.Error != nil {
		return fmt.Errorf("failed to update participant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) CreateRound(ctx context.Context, r *models.Round) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

func (s *gormStore) NextRoundIndex(ctx context.Context, sessionID string) (int, error) {
	var max *int
	err := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Where("session_id = ?", sessionID).
		Select("MAX(index)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get max round index: %w", err)
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

func (s *gormStore) Round(ctx context.Context, id string) (*models.Round, error) {
	var r models.Round
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return &r, nil
}

func (s *gormStore) RoundByIndex(ctx context.Context, sessionID string, index int) (*models.Round, error) {
	var r models.Round
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND index = ?", sessionID, index).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round by index: %w", err)
	}
	return &r, nil
}

func (s *gormStore) SaveRound(ctx context.Context, r *models.Round) error {
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("failed to save round: %w", err)
	}
	return nil
}

func (s *gormStore) CurrentRound(ctx context.Context, sessionID string) (*models.Round, error) {
	var r models.Round
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND started_at IS NOT NULL AND ended_at IS NULL", sessionID).
		Order("index DESC").
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current round: %w", err)
	}
	return &r, nil
}

func (s *gormStore) RoundsBySession(ctx context.Context, sessionID string) ([]models.Round, error) {
	var out []models.Round
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("index").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return out, nil
}

func (s *gormStore) UpsertMetrics(ctx context.Context, m *models.Metrics) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Metrics
		err := tx.Where("round_id = ? AND participant_id = ?", m.RoundID, m.ParticipantID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			return tx.Create(m).Error
		}
		if err != nil {
			return err
		}
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
		return tx.Save(m).Error
	})
}

func (s *gormStore) MetricsByRound(ctx context.Context, roundID string) ([]models.Metrics, error) {
	var out []models.Metrics
	err := s.db.WithContext(ctx).Where("round_id = ?", roundID).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return out, nil
}

func (s *gormStore) UpsertVote(ctx context.Context, v *models.Vote) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Vote
		err := tx.Where("round_id = ? AND voter_hash = ? AND participant_id = ?",
			v.RoundID, v.VoterHash, v.ParticipantID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if v.ID == "" {
				v.ID = uuid.NewString()
			}
			return tx.Create(v).Error
		}
		if err != nil {
			return err
		}
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
		return tx.Save(v).Error
	})
}

func (s *gormStore) VoteStatsByRound(ctx context.Context, roundID string) (map[string]VoteStats, error) {
	var rows []struct {
		ParticipantID string
		Count         int
		Avg           float64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("participant_id, COUNT(id) AS count, AVG(score) AS avg").
		Where("round_id = ?", roundID).
		Group("participant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate votes: %w", err)
	}

	out := make(map[string]VoteStats, len(rows))
	for _, row := range rows {
		out[row.ParticipantID] = VoteStats{Count: row.Count, Avg: row.Avg}
	}
	return out, nil
}

func (s *gormStore) SessionStats(ctx context.Context, sessionID string) (*SessionStats, error) {
	stats := &SessionStats{}

	var totalRounds, completedRounds, participants, votes int64
	var totalTokens *int64

	if err := s.db.WithContext(ctx).Model(&models.Round{}).
		Where("session_id = ?", sessionID).Count(&totalRounds).Error; err != nil {
		return nil, fmt.Errorf("failed to count rounds: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Round{}).
		Where("session_id = ? AND ended_at IS NOT NULL", sessionID).
		Count(&completedRounds).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed rounds: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Participant{}).
		Where("session_id = ?", sessionID).Count(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Metrics{}).
		Select("SUM(metrics.tokens)").
		Joins("JOIN rounds ON rounds.id = metrics.round_id").
		Where("rounds.session_id = ?", sessionID).
		Scan(&totalTokens).Error; err != nil {
		return nil, fmt.Errorf("failed to sum tokens: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Joins("JOIN rounds ON rounds.id = votes.round_id").
		Where("rounds.session_id = ?", sessionID).
		Count(&votes).Error; err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}

	stats.TotalRounds = int(totalRounds)
	stats.CompletedRounds = int(completedRounds)
	stats.TotalParticipants = int(participants)
	if totalTokens != nil {
		stats.TotalTokens = int(*totalTokens)
	}
	stats.TotalVotes = int(votes)
	return stats, nil
}
