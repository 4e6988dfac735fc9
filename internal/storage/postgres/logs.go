package postgres

import (
	"context"
	"fmt"

	"github.com/starford/pathnote/internal/models"
)

// AppendLog records an admin action.
func (s *Store) AppendLog(ctx context.Context, e models.AdminLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_logs (id, action, target_path, details, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Action, e.TargetPath, e.Details, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListLogs returns up to limit entries, newest first. Entries sharing a
// timestamp come back in reverse insertion order.
func (s *Store) ListLogs(ctx context.Context, limit int) ([]models.AdminLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, target_path, details, created_at
		 FROM admin_logs
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.AdminLogEntry{}
	for rows.Next() {
		var e models.AdminLogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.TargetPath, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
