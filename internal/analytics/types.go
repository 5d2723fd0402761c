package analytics

import (
	"context"
	"time"
)

// CallRecord summarizes one finished session.
type CallRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int       `json:"duration_seconds"`
	EndReason       string    `json:"end_reason"`
	UserTurns       int       `json:"user_turns"`
	AssistantTurns  int       `json:"assistant_turns"`
	ToolCalls       int       `json:"tool_calls"`
	Qualified       bool      `json:"qualified"`
}

// KnowledgeGap records a question the assistant could not answer from its
// knowledge base, so operators know what content to add.
type KnowledgeGap struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyStats aggregates call records per calendar day.
type DailyStats struct {
	Day             string  `json:"day"`
	Calls           int     `json:"calls"`
	AvgDurationSecs float64 `json:"avg_duration_seconds"`
	QualifiedRate   float64 `json:"qualified_rate"`
	ToolCalls       int     `json:"tool_calls"`
}

// Qualify is the heuristic for a productive call: the caller engaged past
// pleasantries and at least one tool ran on their behalf.
func Qualify(userTurns, toolCalls int) bool {
	return userTurns >= 3 && toolCalls > 0
}

// Store persists and queries call analytics.
type Store interface {
	SaveCall(ctx context.Context, record CallRecord) error
	RecentCalls(ctx context.Context, limit int) ([]CallRecord, error)
	SaveKnowledgeGap(ctx context.Context, gap KnowledgeGap) error
	KnowledgeGaps(ctx context.Context, limit int) ([]KnowledgeGap, error)
	Daily(ctx context.Context, days int) ([]DailyStats, error)
	Close() error
}
