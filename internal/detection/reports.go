package detection

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppiankov/supaspectre/internal/models"
)

type reportMap map[string]models.Report

// SaveReport persists a report. The newest MaxReports reports younger than
// the TTL are kept.
func (s *Store) SaveReport(ctx context.Context, r models.Report) (models.Report, error) {
	if r.ID == "" {
		return r, fmt.Errorf("%w: report payload missing id", ErrInvalidDetection)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := reportMap{}
	s.load(ctx, KeyReports, &m)
	m[r.ID] = r

	next := reportMap{}
	for _, entry := range s.liveReports(m) {
		next[entry.ID] = entry
		if len(next) >= MaxReports {
			break
		}
	}

	if err := s.kv.Set(ctx, KeyReports, next); err != nil {
		return r, fmt.Errorf("store report: %w", err)
	}
	return r, nil
}

// Report returns a stored, unexpired report by id
func (s *Store) Report(ctx context.Context, id string) (*models.Report, bool) {
	m := reportMap{}
	s.load(ctx, KeyReports, &m)
	r, ok := m[id]
	if !ok || s.expired(r.CreatedAt) {
		return nil, false
	}
	return &r, true
}

// Reports returns unexpired reports, newest first
func (s *Store) Reports(ctx context.Context) []models.Report {
	m := reportMap{}
	s.load(ctx, KeyReports, &m)
	return s.liveReports(m)
}

// PreviousReport returns the newest stored report for projectID created
// before the given report
func (s *Store) PreviousReport(ctx context.Context, r models.Report) (*models.Report, bool) {
	for _, entry := range s.Reports(ctx) {
		if entry.ID == r.ID || entry.ProjectID != r.ProjectID {
			continue
		}
		if !r.CreatedAt.IsZero() && !entry.CreatedAt.Before(r.CreatedAt) {
			continue
		}
		return &entry, true
	}
	return nil, false
}

func (s *Store) liveReports(m reportMap) []models.Report {
	out := make([]models.Report, 0, len(m))
	for id, entry := range m {
		if entry.ID == "" {
			entry.ID = id
		}
		if s.expired(entry.CreatedAt) {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
