package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mohammad-safakhou/pdfbot/internal/document"
	"github.com/mohammad-safakhou/pdfbot/models"
)

// ErrNoDocuments is returned by LoadDir when the directory holds no PDFs.
var ErrNoDocuments = errors.New("no pdf files in directory")

// Ingester replaces the knowledge base with a set of files, or drops the
// version it loaded.
type Ingester interface {
	Ingest(ctx context.Context, files ...document.File) (models.IngestResult, error)
	Unload(version uint64) bool
}

// Watcher keeps the knowledge base in sync with the PDFs in a directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	ingester Ingester
	logger   *log.Logger

	loaded uint64 // version of the last successful reload, 0 if none
}

func New(dir string, debounce time.Duration, ingester Ingester) *Watcher {
	if debounce <= 0 {
		debounce = 750 * time.Millisecond
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		ingester: ingester,
		logger:   log.New(log.Writer(), "[WATCH] ", log.LstdFlags),
	}
}

// LoadDir ingests every *.pdf in the directory, in name order, as one
// knowledge base.
func (w *Watcher) LoadDir(ctx context.Context) (models.IngestResult, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("read dir %s: %w", w.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return models.IngestResult{}, ErrNoDocuments
	}
	sort.Strings(names)

	files := make([]document.File, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(w.dir, name))
		if err != nil {
			return models.IngestResult{}, fmt.Errorf("read %s: %w", name, err)
		}
		files = append(files, document.File{Name: name, Data: data})
	}
	return w.ingester.Ingest(ctx, files...)
}

// Run loads the directory once and then reloads it after changes settle.
// It returns when ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Printf("watching %s", w.dir)
	w.reload(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isPDF(ev.Name) || !ev.Op.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watcher error: %v", err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	res, err := w.LoadDir(ctx)
	switch {
	case errors.Is(err, ErrNoDocuments):
		if w.loaded != 0 && w.ingester.Unload(w.loaded) {
			w.logger.Printf("no PDFs left in %s; knowledge base cleared", w.dir)
		} else {
			w.logger.Printf("no PDFs in %s; keeping current knowledge base", w.dir)
		}
		w.loaded = 0
	case err != nil:
		w.logger.Printf("reload failed: %v", err)
	default:
		w.loaded = res.Version
		w.logger.Printf("loaded %d file(s), %d chunks, version %d", len(res.Files), res.Chunks, res.Version)
	}
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
