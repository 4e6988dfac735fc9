package adminservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/checksum"
	"github.com/starford/pathnote/internal/content"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/noteservice"
	"github.com/starford/pathnote/internal/storage"
)

// Blob key prefixes and timestamp layout of stored artifacts.
const (
	ExportPrefix = "exports/"
	BackupPrefix = "backups/"
	keyTimestamp = "20060102T150405Z"
)

// Artifact is a serialized export or backup document.
type Artifact struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Notes    int    `json:"notes"`
	Data     []byte `json:"-"`
}

// Export serializes every note, stores the document under exports/ and
// returns it.
func (s *Service) Export(ctx context.Context) (*Artifact, error) {
	now := s.now().UTC()
	a, err := s.writeDocument(ctx, models.ExportDocument{ExportedAt: &now},
		ExportPrefix+"notes-"+now.Format(keyTimestamp)+".json")
	if err != nil {
		return nil, err
	}
	s.audit(ctx, models.ActionExport, "", fmt.Sprintf("key=%s notes=%d", a.Key, a.Notes))
	return a, nil
}

// Backup stores a full snapshot under backups/.
func (s *Service) Backup(ctx context.Context) (*Artifact, error) {
	now := s.now().UTC()
	a, err := s.writeDocument(ctx, models.ExportDocument{CreatedAt: &now},
		BackupPrefix+"backup-"+now.Format(keyTimestamp)+".json")
	if err != nil {
		return nil, err
	}
	s.audit(ctx, models.ActionBackup, "", fmt.Sprintf("key=%s notes=%d", a.Key, a.Notes))
	return a, nil
}

func (s *Service) writeDocument(ctx context.Context, doc models.ExportDocument, key string) (*Artifact, error) {
	notes, err := s.allNotes(ctx)
	if err != nil {
		return nil, err
	}
	doc.Version = models.ExportVersion
	doc.Notes = make([]models.ExportedNote, len(notes))
	for i, n := range notes {
		doc.Notes[i] = models.ExportNote(n)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := s.blobs.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	s.log.Info("document stored",
		slog.String("key", key),
		slog.Int("notes", len(notes)),
		slog.Int("bytes", len(data)))
	return &Artifact{
		Key:      key,
		Size:     int64(len(data)),
		Checksum: checksum.Sum(data),
		Notes:    len(notes),
		Data:     data,
	}, nil
}

// allNotes pages through the store in path order.
func (s *Service) allNotes(ctx context.Context) ([]models.Note, error) {
	var all []models.Note
	opts := storage.ListOptions{Limit: storage.MaxListLimit, Sort: storage.SortPath}
	for {
		page, err := s.notes.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < opts.Limit {
			return all, nil
		}
		opts.Offset += len(page)
	}
}

// ImportResult reports an import run.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// ParseDocument decodes an export or backup document.
func ParseDocument(data []byte) (*models.ExportDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc models.ExportDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, invalidInput("malformed document: %v", err)
	}
	if doc.Version < 1 || doc.Version > models.ExportVersion {
		return nil, invalidInput("unsupported document version %d", doc.Version)
	}
	return &doc, nil
}

// Import loads a document one note at a time. Existing paths are skipped
// unless overwrite is set, in which case their content and lock are
// replaced. Per-note failures are collected, not returned.
func (s *Service) Import(ctx context.Context, data []byte, overwrite bool) (*ImportResult, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	res := &ImportResult{Errors: []string{}}
	for _, e := range doc.Notes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		kind, err := s.importNote(ctx, e, overwrite)
		switch {
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.Path, err))
		case kind == "":
			res.Skipped++
		default:
			res.Imported++
			s.mutated(ctx, "import", kind, e.Path)
		}
	}
	s.audit(ctx, models.ActionImport, "", fmt.Sprintf("imported=%d skipped=%d failed=%d overwrite=%t",
		res.Imported, res.Skipped, res.Failed, overwrite))
	return res, nil
}

// importNote returns the event kind of the applied change, or "" when the
// note was skipped.
func (s *Service) importNote(ctx context.Context, e models.ExportedNote, overwrite bool) (string, error) {
	if err := s.rules.Validate(e.Path); err != nil {
		return "", err
	}
	n := e.Note()
	clean, err := content.Sanitize(n.Content)
	if err != nil {
		return "", invalidInput("unparseable content")
	}
	n.Content = clean

	err = s.notes.Insert(ctx, n)
	if err == nil {
		return noteservice.EventCreated, nil
	}
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		return "", err
	}
	if !overwrite {
		return "", nil
	}
	lock := n.Lock()
	if err := s.notes.Update(ctx, n.Path, models.NoteUpdate{Content: &n.Content, Lock: &lock}); err != nil {
		return "", err
	}
	return noteservice.EventUpdated, nil
}

// ListBlobs lists stored exports and backups under prefix.
func (s *Service) ListBlobs(ctx context.Context, prefix string) ([]models.BlobInfo, error) {
	return s.blobs.List(ctx, prefix)
}

// GetBlob returns a stored export or backup. Other keys are reported as
// absent.
func (s *Service) GetBlob(ctx context.Context, key string) ([]byte, error) {
	if !strings.HasPrefix(key, ExportPrefix) && !strings.HasPrefix(key, BackupPrefix) {
		return nil, apperr.ErrNotFound
	}
	return s.blobs.Get(ctx, key)
}
