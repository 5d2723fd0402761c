package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps analytics in process for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	calls []CallRecord
	gaps  []KnowledgeGap
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveCall(_ context.Context, record CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	s.calls = append(s.calls, record)
	return nil
}

func (s *InMemoryStore) RecentCalls(_ context.Context, limit int) ([]CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.calls) {
		limit = len(s.calls)
	}
	out := make([]CallRecord, 0, limit)
	for i := len(s.calls) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.calls[i])
	}
	return out, nil
}

func (s *InMemoryStore) SaveKnowledgeGap(_ context.Context, gap KnowledgeGap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gap.ID == "" {
		gap.ID = uuid.NewString()
	}
	if gap.CreatedAt.IsZero() {
		gap.CreatedAt = time.Now().UTC()
	}
	s.gaps = append(s.gaps, gap)
	return nil
}

func (s *InMemoryStore) KnowledgeGaps(_ context.Context, limit int) ([]KnowledgeGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.gaps) {
		limit = len(s.gaps)
	}
	out := make([]KnowledgeGap, 0, limit)
	for i := len(s.gaps) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.gaps[i])
	}
	return out, nil
}

func (s *InMemoryStore) Daily(_ context.Context, days int) ([]DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	type agg struct {
		calls     int
		duration  int
		qualified int
		toolCalls int
	}
	byDay := make(map[string]*agg)
	for _, c := range s.calls {
		if c.EndedAt.Before(cutoff) {
			continue
		}
		day := c.EndedAt.UTC().Format("2006-01-02")
		a := byDay[day]
		if a == nil {
			a = &agg{}
			byDay[day] = a
		}
		a.calls++
		a.duration += c.DurationSeconds
		if c.Qualified {
			a.qualified++
		}
		a.toolCalls += c.ToolCalls
	}

	out := make([]DailyStats, 0, len(byDay))
	for day, a := range byDay {
		out = append(out, DailyStats{
			Day:             day,
			Calls:           a.calls,
			AvgDurationSecs: float64(a.duration) / float64(a.calls),
			QualifiedRate:   float64(a.qualified) / float64(a.calls),
			ToolCalls:       a.toolCalls,
		})
	}
	// Newest day first, matching the SQL variant.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Day > out[i].Day {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
