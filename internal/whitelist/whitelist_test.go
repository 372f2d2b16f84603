package whitelist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	failing bool
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]Entry{}}
}

func (m *memStore) ListWhitelist(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) UpsertWhitelist(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	for _, e := range entries {
		m.entries[e.Path] = e
	}
	return nil
}

func (m *memStore) DeleteWhitelist(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[path]
	delete(m.entries, path)
	return ok, nil
}

func TestSnapshot_IsExcluded(t *testing.T) {
	s := NewSnapshot([]Entry{
		{Path: "/media/tv/Show A/extras.mkv", Type: TypeFile},
		{Path: "/media/tv/Show B/", Type: TypeDirectory},
	})

	assert.True(t, s.IsExcluded("/media/tv/Show A/extras.mkv"))
	assert.False(t, s.IsExcluded("/media/tv/Show A/extras2.mkv"))
	assert.False(t, s.IsExcluded("/media/tv/Show A"), "file entry does not exclude its parent")

	assert.True(t, s.IsExcluded("/media/tv/Show B"))
	assert.True(t, s.IsExcluded("/media/tv/Show B/Season 1/ep.mkv"))
	assert.False(t, s.IsExcluded("/media/tv/Show Bee/ep.mkv"), "sibling with shared prefix is not excluded")
}

func TestSnapshot_NormalizesAndDeduplicates(t *testing.T) {
	s := NewSnapshot([]Entry{
		{Path: "/media/tv/Show/", Type: TypeFile},
		{Path: "/media/tv//Show", Type: TypeDirectory},
	})
	require.Equal(t, 1, s.Len())
	assert.Equal(t, TypeDirectory, s.Entries()[0].Type)
	assert.Equal(t, "/media/tv/Show", s.Entries()[0].Path)
	assert.True(t, s.IsExcluded(`/media/tv/Show/ep.mkv`))
}

func TestFilter_AddRemove(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	f := New(store)
	require.NoError(t, f.Load(ctx))

	e, err := f.Add(ctx, Entry{Path: "/media/tv/Show/odd.mkv", Type: TypeFile})
	require.NoError(t, err)
	assert.False(t, e.AddedAt.IsZero())
	assert.True(t, f.IsExcluded("/media/tv/Show/odd.mkv"))

	removed, err := f.Remove(ctx, "/media/tv/Show/odd.mkv/")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, f.IsExcluded("/media/tv/Show/odd.mkv"))
	assert.Empty(t, store.entries)

	removed, err = f.Remove(ctx, "/not/there")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFilter_AddBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	f := New(store)

	_, err := f.AddBatch(ctx, []Entry{
		{Path: "/a", Type: TypeFile},
		{Path: "/b", Type: "bogus"},
	})
	require.Error(t, err)
	assert.Zero(t, f.Snapshot().Len())

	store.failing = true
	_, err = f.AddBatch(ctx, []Entry{{Path: "/a", Type: TypeFile}})
	require.Error(t, err)
	assert.False(t, f.IsExcluded("/a"))

	store.failing = false
	added, err := f.AddBatch(ctx, []Entry{{Path: "/a", Type: TypeFile}, {Path: "/b", Type: TypeDirectory}})
	require.NoError(t, err)
	assert.Len(t, added, 2)
	assert.True(t, f.IsExcluded("/b/c"))
}

func TestFilter_DetectsTypeFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.mkv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	f := New(newMemStore())
	d, err := f.Add(ctx, Entry{Path: dir})
	require.NoError(t, err)
	assert.Equal(t, TypeDirectory, d.Type)

	fe, err := f.Add(ctx, Entry{Path: file})
	require.NoError(t, err)
	assert.Equal(t, TypeFile, fe.Type)
}

func TestFilter_ReadersSeeConsistentSnapshots(t *testing.T) {
	ctx := context.Background()
	f := New(newMemStore())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = f.AddBatch(ctx, []Entry{
				{Path: "/lib/x", Type: TypeDirectory},
				{Path: "/lib/y", Type: TypeDirectory},
			})
			_, _ = f.Remove(ctx, "/lib/x")
			_, _ = f.Remove(ctx, "/lib/y")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			s := f.Snapshot()
			x, y := s.IsExcluded("/lib/x/f"), s.IsExcluded("/lib/y/f")
			if x && !y {
				t.Errorf("observed half-applied batch")
				return
			}
		}
	}()
	wg.Wait()
}
