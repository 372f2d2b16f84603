package rollback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/executor"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db     *database.MediaDB
	exec   *executor.Executor
	engine *Engine
	root   string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exec := executor.New(executor.Config{Store: db})
	return &fixture{db: db, exec: exec, engine: New(exec, db, nil), root: t.TempDir()}
}

func (f *fixture) file(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (f *fixture) rename(src, rel, season string) media.ClassifiedFile {
	return media.ClassifiedFile{
		Path: src, Target: filepath.Join(f.root, rel), Operation: media.OpRename,
		Status: media.StatusPending, Library: "tv", Show: "Show", SeasonLabel: season,
	}
}

func (f *fixture) apply(t *testing.T, runID string, ops ...media.ClassifiedFile) {
	t.Helper()
	res := f.exec.Apply(context.Background(), runID, ops)
	require.Empty(t, res.Failures)
}

func TestRollbackRunRestoresOriginals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.file(t, "tv/Show/Show.S02E05.mkv", "episode five")
	b := f.file(t, "tv/Show/Show.S02E05.srt", "subs")
	f.apply(t, "run-1",
		f.rename(a, "tv/Show/Season 2/Show - S02E05.mkv", "Season 2"),
		media.ClassifiedFile{Path: b, Target: filepath.Join(f.root, "tv/Show/Season 2/Show - S02E05.srt"),
			Operation: media.OpSubtitleRename, Status: media.StatusPending, Library: "tv", Show: "Show", SeasonLabel: "Season 2"},
	)

	res, err := f.engine.RollbackRun(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, res.PartiallyFailed(), "%+v", res.Failures)
	assert.Len(t, res.RolledBack, 2)
	assert.Equal(t, media.OpSubtitleRename, res.RolledBack[0].Operation, "newest first")

	content, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "episode five", string(content))
	assert.FileExists(t, b)
	assert.NoDirExists(t, filepath.Join(f.root, "tv/Show/Season 2"), "emptied season directory is removed")

	records, err := f.db.RecordsForRun(ctx, "run-1")
	require.NoError(t, err)
	for _, rec := range records {
		assert.False(t, rec.Active(), "record %d still active", rec.ID)
	}

	again, err := f.engine.RollbackRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Zero(t, again.Attempted, "rolled-back records are not attempted twice")
}

func TestRollbackSeasonOnlyTouchesThatSeason(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s1 := f.file(t, "tv/Show/Show.S01E01.mkv", "one")
	s2 := f.file(t, "tv/Show/Show.S02E01.mkv", "two")
	f.apply(t, "run-1",
		f.rename(s1, "tv/Show/Season 1/Show - S01E01.mkv", "Season 1"),
		f.rename(s2, "tv/Show/Season 2/Show - S02E01.mkv", "Season 2"),
	)

	res, err := f.engine.RollbackSeason(ctx, database.SeasonQuery{MediaType: "tv", Show: "Show", Season: "Season 2"})
	require.NoError(t, err)
	require.Len(t, res.RolledBack, 1)
	assert.FileExists(t, s2)
	assert.NoFileExists(t, s1)
	assert.FileExists(t, filepath.Join(f.root, "tv/Show/Season 1/Show - S01E01.mkv"))
	assert.Equal(t, "tv / Show / Season 2", res.Scope)
}

func TestRollbackUndoesChainedRenamesInReverseOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	orig := f.file(t, "tv/Show/ep.mkv", "content")
	mid := filepath.Join(f.root, "tv/Show/Season 1/mid.mkv")

	f.apply(t, "run-1", f.rename(orig, "tv/Show/Season 1/mid.mkv", "Season 1"))
	f.apply(t, "run-2", f.rename(mid, "tv/Show/Season 1/final.mkv", "Season 1"))

	res, err := f.engine.RollbackSeason(ctx, database.SeasonQuery{Show: "Show", Season: "Season 1"})
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	require.Len(t, res.RolledBack, 2)
	assert.Equal(t, "run-2", res.RolledBack[0].RunID)
	assert.FileExists(t, orig)
}

func TestRollbackNFODeleteIsNotReversible(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	nfo := f.file(t, "tv/Show/orphan.nfo", "<episodedetails/>")
	f.apply(t, "run-1", media.ClassifiedFile{
		Path: nfo, Operation: media.OpNFODelete, Status: media.StatusPending, Library: "tv", Show: "Show",
	})

	res, err := f.engine.RollbackRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "not_reversible", res.Failures[0].Reason)
	assert.NoFileExists(t, nfo, "deleted nfo is not recreated")

	records, err := f.db.RecordsForRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, records[0].Active())
}

func TestRollbackDriftFailsOnlyThatRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.file(t, "tv/Show/a.mkv", "aaa")
	b := f.file(t, "tv/Show/b.mkv", "bbb")
	c := f.file(t, "tv/Show/c.mkv", "ccc")
	f.apply(t, "run-1",
		f.rename(a, "tv/Show/Season 1/A.mkv", "Season 1"),
		f.rename(b, "tv/Show/Season 1/B.mkv", "Season 1"),
		f.rename(c, "tv/Show/Season 1/C.mkv", "Season 1"),
	)

	// Modify one renamed file and delete another.
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "tv/Show/Season 1/A.mkv"), []byte("changed"), 0644))
	require.NoError(t, os.Remove(filepath.Join(f.root, "tv/Show/Season 1/B.mkv")))

	res, err := f.engine.RollbackRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, res.Failures, 2)
	for _, fail := range res.Failures {
		assert.Equal(t, "drift", fail.Reason)
	}
	require.Len(t, res.RolledBack, 1)
	assert.FileExists(t, c)
	assert.NoFileExists(t, a)
}

func TestRollbackRefusesOccupiedSource(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.file(t, "tv/Show/a.mkv", "aaa")
	f.apply(t, "run-1", f.rename(a, "tv/Show/Season 1/A.mkv", "Season 1"))
	f.file(t, "tv/Show/a.mkv", "a new download")

	res, err := f.engine.RollbackRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "source_occupied", res.Failures[0].Reason)

	content, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "a new download", string(content))
}

func TestRollbackStopsWhenCancelled(t *testing.T) {
	f := setup(t)
	a := f.file(t, "tv/Show/a.mkv", "aaa")
	f.apply(t, "run-1", f.rename(a, "tv/Show/Season 1/A.mkv", "Season 1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.RollbackRun(ctx, "run-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, a)

	records, err := f.db.ActiveRecordsForRun(context.Background(), "run-1")
	require.NoError(t, err)
	res := f.engine.rollback(ctx, "run run-1", records)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.NotAttempted)
	assert.Zero(t, res.Attempted)
}
