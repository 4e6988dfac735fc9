package sqlite

import (
	"context"
	"fmt"

	"github.com/starford/pathnote/internal/models"
)

// AppendLog records an admin action.
func (s *Store) AppendLog(ctx context.Context, e models.AdminLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO admin_logs (id, action, target_path, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.Action, e.TargetPath, e.Details, toMillis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: append log: %w", err)
	}
	return nil
}

// ListLogs returns up to limit entries, newest first. Entries sharing a
// timestamp come back in reverse insertion order.
func (s *Store) ListLogs(ctx context.Context, limit int) ([]models.AdminLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, action, target_path, details, created_at
		FROM admin_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list logs: %w", err)
	}
	defer rows.Close()

	out := []models.AdminLogEntry{}
	for rows.Next() {
		var (
			e       models.AdminLogEntry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.TargetPath, &e.Details, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan log: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
