package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists call analytics in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_seconds INT NOT NULL,
			end_reason TEXT NOT NULL,
			user_turns INT NOT NULL DEFAULT 0,
			assistant_turns INT NOT NULL DEFAULT 0,
			tool_calls INT NOT NULL DEFAULT 0,
			qualified BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_ended ON call_records (ended_at);`,
		`CREATE TABLE IF NOT EXISTS knowledge_gaps (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			query TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveCall(ctx context.Context, record CallRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_records
		 (id, session_id, started_at, ended_at, duration_seconds, end_reason, user_turns, assistant_turns, tool_calls, qualified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID,
		record.SessionID,
		record.StartedAt,
		record.EndedAt,
		record.DurationSeconds,
		record.EndReason,
		record.UserTurns,
		record.AssistantTurns,
		record.ToolCalls,
		record.Qualified,
	)
	if err != nil {
		return fmt.Errorf("save call: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, started_at, ended_at, duration_seconds, end_reason, user_turns, assistant_turns, tool_calls, qualified
		 FROM call_records ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	items := make([]CallRecord, 0, limit)
	for rows.Next() {
		var r CallRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.StartedAt, &r.EndedAt, &r.DurationSeconds,
			&r.EndReason, &r.UserTurns, &r.AssistantTurns, &r.ToolCalls, &r.Qualified); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SaveKnowledgeGap(ctx context.Context, gap KnowledgeGap) error {
	if gap.ID == "" {
		gap.ID = uuid.NewString()
	}
	if gap.CreatedAt.IsZero() {
		gap.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO knowledge_gaps (id, session_id, query, created_at) VALUES ($1, $2, $3, $4)`,
		gap.ID, gap.SessionID, gap.Query, gap.CreatedAt)
	if err != nil {
		return fmt.Errorf("save knowledge gap: %w", err)
	}
	return nil
}

func (s *PostgresStore) KnowledgeGaps(ctx context.Context, limit int) ([]KnowledgeGap, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, query, created_at FROM knowledge_gaps ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query knowledge gaps: %w", err)
	}
	defer rows.Close()

	items := make([]KnowledgeGap, 0, limit)
	for rows.Next() {
		var g KnowledgeGap
		if err := rows.Scan(&g.ID, &g.SessionID, &g.Query, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gap row: %w", err)
		}
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gap rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Daily(ctx context.Context, days int) ([]DailyStats, error) {
	if days <= 0 {
		days = 7
	}
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(date_trunc('day', ended_at), 'YYYY-MM-DD') AS day,
		        count(*),
		        coalesce(avg(duration_seconds), 0),
		        coalesce(avg(CASE WHEN qualified THEN 1.0 ELSE 0.0 END), 0),
		        coalesce(sum(tool_calls), 0)
		 FROM call_records
		 WHERE ended_at >= now() - make_interval(days => $1)
		 GROUP BY 1 ORDER BY 1 DESC`, days)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	items := make([]DailyStats, 0, days)
	for rows.Next() {
		var d DailyStats
		if err := rows.Scan(&d.Day, &d.Calls, &d.AvgDurationSecs, &d.QualifiedRate, &d.ToolCalls); err != nil {
			return nil, fmt.Errorf("scan daily row: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
