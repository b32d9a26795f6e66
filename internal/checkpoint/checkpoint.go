// Package checkpoint persists the entries of a batch run after every page.
//
// Each save writes a complete snapshot of everything accumulated so far and
// atomically replaces the previous one, so a crash at any point leaves the
// last fully written snapshot readable.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gradecard/pkg/models"
)

// Store persists a full snapshot of a run.
type Store interface {
	Save(ctx context.Context, entries []models.PageEntry) error
}

// FileStore writes snapshots as indented JSON to Path.
type FileStore struct {
	Path string
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, entries []models.PageEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []models.PageEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := WriteFile(s.Path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", s.Path, err)
	}
	return nil
}

// Load reads a snapshot written by FileStore. Page numbers are restored from
// the entry positions.
func Load(path string) ([]models.PageEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var entries []models.PageEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	for i := range entries {
		entries[i].Page = i + 1
	}
	return entries, nil
}

// Writer accumulates entries and saves the whole list on every append.
type Writer struct {
	mu      sync.Mutex
	store   Store
	entries []models.PageEntry
}

// NewWriter returns a Writer saving through store.
func NewWriter(store Store) *Writer {
	return &Writer{store: store, entries: []models.PageEntry{}}
}

// Append records entry and persists the full snapshot. On a save error the
// entry stays recorded so a later Flush can retry.
func (w *Writer) Append(ctx context.Context, entry models.PageEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
	return w.store.Save(ctx, w.snapshot())
}

// Flush persists the current snapshot without adding anything.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.Save(ctx, w.snapshot())
}

// Entries returns a copy of the accumulated entries.
func (w *Writer) Entries() []models.PageEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

// Len returns the number of accumulated entries.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Writer) snapshot() []models.PageEntry {
	return append([]models.PageEntry(nil), w.entries...)
}
