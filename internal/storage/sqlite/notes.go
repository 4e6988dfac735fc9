package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/storage"
)

const noteColumns = `path, content, is_locked, lock_type, password_hash, view_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*models.Note, error) {
	var (
		n                models.Note
		locked           bool
		lockType, pwHash sql.NullString
		created, updated int64
	)
	if err := row.Scan(&n.Path, &n.Content, &locked, &lockType, &pwHash, &n.ViewCount, &created, &updated); err != nil {
		return nil, err
	}
	if locked {
		n.SetLock(models.Lock{Type: models.LockType(lockType.String), PasswordHash: pwHash.String})
	}
	n.CreatedAt = fromMillis(created)
	n.UpdatedAt = fromMillis(updated)
	return &n, nil
}

// lockArgs returns the is_locked, lock_type and password_hash column values for l.
func lockArgs(l models.Lock) (bool, any, any) {
	if !l.Locked() {
		return false, nil, nil
	}
	return true, string(l.Type), l.PasswordHash
}

// Get returns the note at path.
func (s *Store) Get(ctx context.Context, path string) (*models.Note, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE path = ?`, path)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get note: %w", err)
	}
	return n, nil
}

// Insert creates a new note row.
func (s *Store) Insert(ctx context.Context, n models.Note) error {
	now := s.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	locked, lockType, pwHash := lockArgs(n.Lock())

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO NOTHING
	`, n.Path, n.Content, locked, lockType, pwHash, n.ViewCount, toMillis(n.CreatedAt), toMillis(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: insert note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: insert note: %w", err)
	}
	if affected == 0 {
		return apperr.ErrAlreadyExists
	}
	return nil
}

// Update applies the non-nil fields of u and refreshes updated_at.
func (s *Store) Update(ctx context.Context, path string, u models.NoteUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{toMillis(s.now())}
	if u.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *u.Content)
	}
	if u.Lock != nil {
		locked, lockType, pwHash := lockArgs(*u.Lock)
		sets = append(sets, "is_locked = ?", "lock_type = ?", "password_hash = ?")
		args = append(args, locked, lockType, pwHash)
	}
	args = append(args, path)

	res, err := s.conn.ExecContext(ctx, `UPDATE notes SET `+strings.Join(sets, ", ")+` WHERE path = ?`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update note: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// IncrementViews bumps view_count by one.
func (s *Store) IncrementViews(ctx context.Context, path string) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE notes SET view_count = view_count + 1 WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("sqlite: increment views: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes the note at path.
func (s *Store) Delete(ctx context.Context, path string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM notes WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete note: %w", err)
	}
	return affected > 0, nil
}

// List returns a page of notes, optionally filtered by a substring query.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]models.Note, error) {
	opts = opts.Normalize()
	where, args := filterClause(opts.Query)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes`+where+`
		ORDER BY `+storage.OrderClause(opts.Sort)+`
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list notes: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan note: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Count returns the number of notes matching query.
func (s *Store) Count(ctx context.Context, query string) (int, error) {
	where, args := filterClause(query)
	var total int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: count notes: %w", err)
	}
	return total, nil
}

// LatestBlank returns the newest note whose content is empty.
func (s *Store) LatestBlank(ctx context.Context) (*models.Note, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE TRIM(content) = ''
		ORDER BY created_at DESC, path ASC
		LIMIT 1
	`)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: latest blank: %w", err)
	}
	return n, nil
}

func filterClause(query string) (string, []any) {
	if query == "" {
		return "", nil
	}
	like := storage.LikePattern(query)
	return ` WHERE path LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'`, []any{like, like}
}
