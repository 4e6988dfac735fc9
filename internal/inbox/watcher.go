// Package inbox imports export documents dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/pathnote/internal/adminservice"
)

// Suffixes appended to processed files.
const (
	DoneSuffix   = ".done"
	FailedSuffix = ".failed"
)

// settle is how long a file must stay quiet before it is imported.
const settle = 200 * time.Millisecond

// Importer loads an export document. *adminservice.Service satisfies it.
type Importer interface {
	Import(ctx context.Context, data []byte, overwrite bool) (*adminservice.ImportResult, error)
}

// ResultCallback is called after each processed file.
type ResultCallback func(file string, res *adminservice.ImportResult, err error)

// Watch imports every *.json file in dir, then keeps watching for new ones
// until ctx is cancelled. Existing notes are never overwritten. A processed
// file is renamed with DoneSuffix, or FailedSuffix when the document could
// not be read or parsed.
func Watch(ctx context.Context, dir string, imp Importer, logger *slog.Logger, cb ResultCallback) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("inbox: started", slog.String("dir", dir))

	process := func(file string) {
		res, err := importFile(ctx, imp, file)
		suffix := DoneSuffix
		if err != nil {
			suffix = FailedSuffix
			logger.Warn("inbox: import failed",
				slog.String("file", file),
				slog.String("error", err.Error()))
		} else {
			logger.Info("inbox: imported",
				slog.String("file", file),
				slog.Int("imported", res.Imported),
				slog.Int("skipped", res.Skipped),
				slog.Int("failed", res.Failed))
		}
		if renameErr := os.Rename(file, file+suffix); renameErr != nil {
			logger.Error("inbox: rename failed",
				slog.String("file", file),
				slog.String("error", renameErr.Error()))
		}
		if cb != nil {
			cb(file, res, err)
		}
	}

	existing, err := pendingFiles(dir)
	if err != nil {
		return err
	}
	for _, f := range existing {
		process(f)
	}

	// Files are imported once they have been quiet for settle, so a
	// document still being written is not read half-way.
	pending := make(map[string]time.Time)
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(settle)
			timerCh = timer.C
		} else {
			timer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-timerCh:
			now := time.Now()
			for f, seen := range pending {
				if now.Sub(seen) < settle {
					continue
				}
				delete(pending, f)
				if _, statErr := os.Stat(f); statErr != nil {
					continue
				}
				process(f)
			}
			if len(pending) > 0 {
				schedule()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isCandidate(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending[ev.Name] = time.Now()
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func importFile(ctx context.Context, imp Importer, file string) (*adminservice.ImportResult, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("empty document")
	}
	return imp.Import(ctx, data, false)
}

// pendingFiles lists unprocessed documents in dir, sorted by name.
func pendingFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := filepath.Join(dir, e.Name())
		if e.Type().IsRegular() && isCandidate(name) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// isCandidate reports whether name is a visible *.json document.
func isCandidate(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}
