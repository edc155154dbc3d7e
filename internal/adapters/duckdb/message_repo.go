package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/manthysbr/skywatch/internal/core/domain"
)

func (r *Repository) SaveMessage(ctx context.Context, msg domain.Message) error {
	var jobID sql.NullString
	if msg.JobID != "" {
		jobID = sql.NullString{String: string(msg.JobID), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (title, content, job_id, created_at)
		VALUES (?, ?, ?, ?)`,
		msg.Title, msg.Content, jobID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages in append order.
func (r *Repository) ListMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT title, content, job_id, created_at FROM (
			SELECT id, title, content, job_id, created_at
			FROM messages
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var jobID sql.NullString
		if err := rows.Scan(&m.Title, &m.Content, &jobID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.JobID = domain.JobID(jobID.String)
		out = append(out, m)
	}
	return out, rows.Err()
}
