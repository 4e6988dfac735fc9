// Package fsblob is the local runtime's storage.BlobStore: one file per
// object under a root directory.
//
// Logical keys are mapped to file paths segment by segment. Every byte
// outside [A-Za-z0-9_-] is written as %XX, except '.' when it is not the
// first byte of a segment. An empty segment becomes "%". Directory names
// carry a trailing '~' so that "a" and "a/b" can coexist. The mapping is
// reversible, so List reports the original keys, and no key can resolve
// outside the root.
package fsblob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/storage"
)

const dirSuffix = "~"

// Store implements storage.BlobStore on the local file system.
type Store struct {
	root string
}

var _ storage.BlobStore = (*Store)(nil)

// New creates the root directory if needed and returns a store rooted there.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fsblob: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("fsblob: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("fsblob: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fsblob: root is not a directory: %s", abs)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.root }

// filePath maps a logical key to an absolute file path under root.
func (s *Store) filePath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("fsblob: empty key: %w", apperr.ErrInvalidInput)
	}
	segs := strings.Split(key, "/")
	parts := make([]string, 0, len(segs)+1)
	parts = append(parts, s.root)
	for i, seg := range segs {
		enc := encodeSegment(seg)
		if i < len(segs)-1 {
			enc += dirSuffix
		}
		parts = append(parts, enc)
	}
	abs := filepath.Join(parts...)
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("fsblob: key escapes root: %q", key)
	}
	return abs, nil
}

// Put atomically writes data: tmp file, fsync, rename.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	abs, err := s.filePath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsblob: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pathnote-tmp-*")
	if err != nil {
		return fmt.Errorf("fsblob: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("fsblob: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsblob: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsblob: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("fsblob: rename: %w", err)
	}
	success = true
	return nil
}

// Get reads the object at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	abs, err := s.filePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("fsblob: read %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the object at key.
func (s *Store) Delete(_ context.Context, key string) error {
	abs, err := s.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fsblob: delete %q: %w", key, err)
	}
	return nil
}

// List walks the root and returns every object whose key has prefix.
func (s *Store) List(_ context.Context, prefix string) ([]models.BlobInfo, error) {
	out := []models.BlobInfo{}
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == s.root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key, ok := decodePath(rel)
		if !ok || !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, models.BlobInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsblob: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func decodePath(rel string) (string, bool) {
	segs := strings.Split(filepath.ToSlash(rel), "/")
	keys := make([]string, len(segs))
	for i, seg := range segs {
		if i < len(segs)-1 {
			var ok bool
			if seg, ok = strings.CutSuffix(seg, dirSuffix); !ok {
				return "", false
			}
		}
		dec, ok := decodeSegment(seg)
		if !ok {
			return "", false
		}
		keys[i] = dec
	}
	return strings.Join(keys, "/"), true
}

const hexDigits = "0123456789ABCDEF"

func keepByte(c byte, i int) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		return true
	case c == '.':
		return i > 0
	}
	return false
}

func encodeSegment(seg string) string {
	if seg == "" {
		return "%"
	}
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if keepByte(c, i) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func decodeSegment(seg string) (string, bool) {
	if seg == "%" {
		return "", true
	}
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(seg) {
			return "", false
		}
		hi, ok1 := unhex(seg[i+1])
		lo, ok2 := unhex(seg[i+2])
		if !ok1 || !ok2 {
			return "", false
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), true
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
