// Package whitelist decides which library paths a scan must leave alone.
package whitelist

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nomadcxx/embress/internal/pathcmp"
)

// EntryType distinguishes single files from whole directory trees.
type EntryType string

const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	return t == TypeFile || t == TypeDirectory
}

// Entry is one whitelisted path.
type Entry struct {
	Path    string    `json:"path"`
	Type    EntryType `json:"type"`
	AddedAt time.Time `json:"added_at"`
}

// Store persists whitelist entries.
type Store interface {
	ListWhitelist(ctx context.Context) ([]Entry, error)
	UpsertWhitelist(ctx context.Context, entries []Entry) error
	DeleteWhitelist(ctx context.Context, path string) (bool, error)
}

// Snapshot is an immutable view of the whitelist.
type Snapshot struct {
	files   map[string]Entry
	dirs    map[string]Entry
	entries []Entry
}

var empty = &Snapshot{files: map[string]Entry{}, dirs: map[string]Entry{}}

// Empty returns a snapshot that excludes nothing.
func Empty() *Snapshot { return empty }

// NewSnapshot builds a snapshot from entries, deduplicating by normalized path.
// A later entry for the same path replaces the type of an earlier one.
func NewSnapshot(entries []Entry) *Snapshot {
	byKey := make(map[string]Entry, len(entries))
	for _, e := range entries {
		key := pathcmp.Normalize(e.Path)
		if key == "" {
			continue
		}
		if prev, ok := byKey[key]; ok && !prev.AddedAt.IsZero() {
			e.AddedAt = prev.AddedAt
		}
		e.Path = pathcmp.Clean(e.Path)
		byKey[key] = e
	}

	s := &Snapshot{
		files:   make(map[string]Entry),
		dirs:    make(map[string]Entry),
		entries: make([]Entry, 0, len(byKey)),
	}
	for key, e := range byKey {
		if e.Type == TypeDirectory {
			s.dirs[key] = e
		} else {
			s.files[key] = e
		}
		s.entries = append(s.entries, e)
	}
	sort.Slice(s.entries, func(i, j int) bool {
		return s.entries[i].Path < s.entries[j].Path
	})
	return s
}

// IsExcluded reports whether path equals a file entry, or equals or lies
// under a directory entry. Cost is proportional to the path depth.
func (s *Snapshot) IsExcluded(path string) bool {
	key := pathcmp.Normalize(path)
	if key == "" {
		return false
	}
	if _, ok := s.files[key]; ok {
		return true
	}
	if len(s.dirs) == 0 {
		return false
	}
	if _, ok := s.dirs[key]; ok {
		return true
	}
	for _, parent := range pathcmp.Parents(key) {
		if _, ok := s.dirs[parent]; ok {
			return true
		}
	}
	return false
}

// Entries returns the entries sorted by path.
func (s *Snapshot) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Filter owns the live whitelist. Readers take lock-free snapshots; writers
// persist first and then publish a new snapshot, so a reader never sees an
// entry that failed to save or a half-applied batch.
type Filter struct {
	store Store
	mu    sync.Mutex
	snap  atomic.Pointer[Snapshot]
}

// New creates a Filter backed by store. Call Load to read persisted entries.
func New(store Store) *Filter {
	f := &Filter{store: store}
	f.snap.Store(empty)
	return f
}

// Load replaces the in-memory view with the persisted entries.
func (f *Filter) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.store.ListWhitelist(ctx)
	if err != nil {
		return fmt.Errorf("loading whitelist: %w", err)
	}
	f.snap.Store(NewSnapshot(entries))
	return nil
}

// Snapshot returns the current immutable view.
func (f *Filter) Snapshot() *Snapshot {
	return f.snap.Load()
}

// IsExcluded checks path against the current view.
func (f *Filter) IsExcluded(path string) bool {
	return f.snap.Load().IsExcluded(path)
}

// Entries lists the current entries.
func (f *Filter) Entries() []Entry {
	return f.snap.Load().Entries()
}

// Add whitelists a single path.
func (f *Filter) Add(ctx context.Context, e Entry) (Entry, error) {
	added, err := f.AddBatch(ctx, []Entry{e})
	if err != nil {
		return Entry{}, err
	}
	return added[0], nil
}

// AddBatch whitelists several paths at once. Either all entries are saved or none.
func (f *Filter) AddBatch(ctx context.Context, entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	prepared := make([]Entry, 0, len(entries))
	now := time.Now().UTC()
	for _, e := range entries {
		e.Path = strings.TrimSpace(e.Path)
		if e.Path == "" {
			return nil, fmt.Errorf("whitelist entry has empty path")
		}
		e.Path = pathcmp.Clean(e.Path)
		if e.Type == "" {
			e.Type = detectType(e.Path)
		}
		if !e.Type.Valid() {
			return nil, fmt.Errorf("whitelist entry %s: unknown type %q", e.Path, e.Type)
		}
		if e.AddedAt.IsZero() {
			e.AddedAt = now
		}
		prepared = append(prepared, e)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current := f.snap.Load()
	for i, e := range prepared {
		key := pathcmp.Normalize(e.Path)
		if prev, ok := current.files[key]; ok {
			prepared[i].AddedAt = prev.AddedAt
		} else if prev, ok := current.dirs[key]; ok {
			prepared[i].AddedAt = prev.AddedAt
		}
	}

	if err := f.store.UpsertWhitelist(ctx, prepared); err != nil {
		return nil, fmt.Errorf("saving whitelist: %w", err)
	}

	next := append(current.Entries(), prepared...)
	f.snap.Store(NewSnapshot(next))
	return prepared, nil
}

// Remove deletes the entry for path. It reports false when no entry existed.
func (f *Filter) Remove(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current := f.snap.Load()
	key := pathcmp.Normalize(path)
	var stored string
	if e, ok := current.files[key]; ok {
		stored = e.Path
	} else if e, ok := current.dirs[key]; ok {
		stored = e.Path
	} else {
		return false, nil
	}

	removed, err := f.store.DeleteWhitelist(ctx, stored)
	if err != nil {
		return false, fmt.Errorf("removing whitelist entry: %w", err)
	}

	next := make([]Entry, 0, current.Len())
	for _, e := range current.entries {
		if pathcmp.Normalize(e.Path) != key {
			next = append(next, e)
		}
	}
	f.snap.Store(NewSnapshot(next))
	return removed, nil
}

func detectType(path string) EntryType {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return TypeDirectory
	}
	return TypeFile
}
