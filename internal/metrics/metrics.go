package metrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/gambiarra/arena-backend/internal/store"
)

// Manager aggregates session metrics and renders the CSV export.
type Manager struct {
	store store.Store
}

func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// SessionStats returns the aggregate counters for a session.
func (m *Manager) SessionStats(ctx context.Context, sessionID string) (*store.SessionStats, error) {
	return m.store.SessionStats(ctx, sessionID)
}

// ExportCSV renders one row per finalized (round, participant) pair,
// ordered by round index.
func (m *Manager) ExportCSV(ctx context.Context, sessionID string) ([]byte, error) {
	rounds, err := m.store.RoundsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := m.store.ParticipantsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	nicknames := make(map[string]string, len(participants))
	for _, p := range participants {
		nicknames[p.ID] = p.Nickname
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"round", "participant_id", "nickname", "tokens",
		"latency_first_token_ms", "duration_ms", "tps_avg",
		"votes", "avg_score",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, round := range rounds {
		roundMetrics, err := m.store.MetricsByRound(ctx, round.ID)
		if err != nil {
			return nil, err
		}
		stats, err := m.store.VoteStatsByRound(ctx, round.ID)
		if err != nil {
			return nil, err
		}

		for _, mt := range roundMetrics {
			latency := ""
			if mt.LatencyFirstTokenMs != nil {
				latency = strconv.Itoa(*mt.LatencyFirstTokenMs)
			}
			tps := ""
			if mt.TpsAvg != nil {
				tps = fmt.Sprintf("%.2f", *mt.TpsAvg)
			}
			avgScore := ""
			vs, voted := stats[mt.ParticipantID]
			if voted {
				avgScore = fmt.Sprintf("%.2f", vs.Avg)
			}

			row := []string{
				strconv.Itoa(round.Index),
				mt.ParticipantID,
				nicknames[mt.ParticipantID],
				strconv.Itoa(mt.Tokens),
				latency,
				strconv.Itoa(mt.DurationMs),
				tps,
				strconv.Itoa(vs.Count),
				avgScore,
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
