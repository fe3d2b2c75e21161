package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gambiarra/arena-backend/internal/models"
)

// memoryStore is an in-process Store. It backs the database-less dev mode
// and the test suites.
type memoryStore struct {
	mu           sync.Mutex
	sessions     map[string]*models.Session
	participants map[string]*models.Participant
	rounds       map[string]*models.Round
	metrics      map[string]*models.Metrics // keyed roundID|participantID
	votes        map[string]*models.Vote    // keyed roundID|voterHash|participantID
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &memoryStore{
		sessions:     make(map[string]*models.Session),
		participants: make(map[string]*models.Participant),
		rounds:       make(map[string]*models.Round),
		metrics:      make(map[string]*models.Metrics),
		votes:        make(map[string]*models.Vote),
	}
}

func (s *memoryStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *memoryStore) ActiveSession(_ context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Session
	for _, sess := range s.sessions {
		if sess.Status != models.SessionStatusActive {
			continue
		}
		if latest == nil || sess.CreatedAt.After(latest.CreatedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *memoryStore) EndActiveSessions(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Status == models.SessionStatusActive {
			sess.Status = models.SessionStatusEnded
		}
	}
	return nil
}

func (s *memoryStore) UpsertParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.participants[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	s.participants[p.ID] = &cp
	return nil
}

func (s *memoryStore) Participant(_ context.Context, id string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memoryStore) ParticipantsBySession(_ context.Context, sessionID string) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) TouchParticipant(_ context.Context, id string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.LastSeen = seen
	return nil
}

func (s *memoryStore) SetParticipantConnected(_ context.Context, id string, connected bool, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return ErrNotFound
	}
	p.Connected = connected
	p.LastSeen = seen
	return nil
}

func (s *memoryStore) CreateRound(_ context.Context, r *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	s.rounds[r.ID] = &cp
	return nil
}

func (s *memoryStore) NextRoundIndex(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, r := range s.rounds {
		if r.SessionID == sessionID && r.Index > max {
			max = r.Index
		}
	}
	return max + 1, nil
}

func (s *memoryStore) Round(_ context.Context, id string) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memoryStore) RoundByIndex(_ context.Context, sessionID string, index int) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rounds {
		if r.SessionID == sessionID && r.Index == index {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryStore) SaveRound(_ context.Context, r *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rounds[r.ID] = &cp
	return nil
}

func (s *memoryStore) CurrentRound(_ context.Context, sessionID string) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current *models.Round
	for _, r := range s.rounds {
		if r.SessionID != sessionID || r.StartedAt == nil || r.EndedAt != nil {
			continue
		}
		if current == nil || r.Index > current.Index {
			current = r
		}
	}
	if current == nil {
		return nil, ErrNotFound
	}
	cp := *current
	return &cp, nil
}

func (s *memoryStore) RoundsBySession(_ context.Context, sessionID string) ([]models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Round
	for _, r := range s.rounds {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *memoryStore) UpsertMetrics(_ context.Context, m *models.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := m.RoundID + "|" + m.ParticipantID
	if existing, ok := s.metrics[key]; ok {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	} else {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
	}
	cp := *m
	s.metrics[key] = &cp
	return nil
}

func (s *memoryStore) MetricsByRound(_ context.Context, roundID string) ([]models.Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Metrics
	for _, m := range s.metrics {
		if m.RoundID == roundID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

func (s *memoryStore) UpsertVote(_ context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := v.RoundID + "|" + v.VoterHash + "|" + v.ParticipantID
	if existing, ok := s.votes[key]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	} else {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now()
		}
	}
	cp := *v
	s.votes[key] = &cp
	return nil
}

func (s *memoryStore) VoteStatsByRound(_ context.Context, roundID string) (map[string]VoteStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, v := range s.votes {
		if v.RoundID != roundID {
			continue
		}
		sums[v.ParticipantID] += v.Score
		counts[v.ParticipantID]++
	}
	out := make(map[string]VoteStats, len(counts))
	for id, n := range counts {
		out[id] = VoteStats{Count: n, Avg: float64(sums[id]) / float64(n)}
	}
	return out, nil
}

func (s *memoryStore) SessionStats(_ context.Context, sessionID string) (*SessionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &SessionStats{}
	roundIDs := make(map[string]bool)
	for _, r := range s.rounds {
		if r.SessionID != sessionID {
			continue
		}
		stats.TotalRounds++
		if r.EndedAt != nil {
			stats.CompletedRounds++
		}
		roundIDs[r.ID] = true
	}
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			stats.TotalParticipants++
		}
	}
	for _, m := range s.metrics {
		if roundIDs[m.RoundID] {
			stats.TotalTokens += m.Tokens
		}
	}
	for _, v := range s.votes {
		if roundIDs[v.RoundID] {
			stats.TotalVotes++
		}
	}
	return stats, nil
}
