package postgres

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
	)
	if err := row.Scan(&n.Path, &n.Content, &locked, &lockType, &pwHash, &n.ViewCount, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if locked {
		n.SetLock(models.Lock{Type: models.LockType(lockType.String), PasswordHash: pwHash.String})
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}

func lockArgs(l models.Lock) (bool, any, any) {
	if !l.Locked() {
		return false, nil, nil
	}
	return true, string(l.Type), l.PasswordHash
}

// Get returns the note at path.
func (s *Store) Get(ctx context.Context, path string) (*models.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE path = $1`, path)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Insert creates a new note row.
func (s *Store) Insert(ctx context.Context, n models.Note) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	locked, lockType, pwHash := lockArgs(n.Lock())

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (path) DO NOTHING`,
		n.Path, n.Content, locked, lockType, pwHash, n.ViewCount, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return apperr.ErrAlreadyExists
	}
	return nil
}

// Update applies the non-nil fields of u and refreshes updated_at.
func (s *Store) Update(ctx context.Context, path string, u models.NoteUpdate) error {
	args := []any{s.now().UTC()}
	sets := []string{"updated_at = $1"}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Content != nil {
		add("content", *u.Content)
	}
	if u.Lock != nil {
		locked, lockType, pwHash := lockArgs(*u.Lock)
		add("is_locked", locked)
		add("lock_type", lockType)
		add("password_hash", pwHash)
	}
	args = append(args, path)

	query := fmt.Sprintf(`UPDATE notes SET %s WHERE path = $%d`, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// IncrementViews bumps view_count by one.
func (s *Store) IncrementViews(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET view_count = view_count + 1 WHERE path = $1`, path)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes the note at path.
func (s *Store) Delete(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE path = $1`, path)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected > 0, nil
}

// List returns a page of notes, optionally filtered by a substring query.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]models.Note, error) {
	opts = opts.Normalize()
	where, args := filterClause(opts.Query)
	args = append(args, opts.Limit, opts.Offset)

	query := fmt.Sprintf(`SELECT %s FROM notes%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		noteColumns, where, storage.OrderClause(opts.Sort), len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Count returns the number of notes matching query.
func (s *Store) Count(ctx context.Context, query string) (int, error) {
	where, args := filterClause(query)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

// LatestBlank returns the newest note whose content is empty.
func (s *Store) LatestBlank(ctx context.Context) (*models.Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes
		 WHERE TRIM(content) = ''
		 ORDER BY created_at DESC, path ASC
		 LIMIT 1`)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func filterClause(query string) (string, []any) {
	if query == "" {
		return "", nil
	}
	return ` WHERE path ILIKE $1 ESCAPE '\' OR content ILIKE $1 ESCAPE '\'`, []any{storage.LikePattern(query)}
}
