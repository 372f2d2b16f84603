package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/metrics"
	"github.com/Nomadcxx/embress/internal/rules"
	"github.com/Nomadcxx/embress/internal/scanner"
	"github.com/Nomadcxx/embress/internal/whitelist"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	coord *Coordinator
	db    *database.MediaDB
	root  string
	show  string
}

func setup(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Library.Root = root
	cfg.Scan.Enabled = false
	for _, fn := range mutate {
		fn(cfg)
	}

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := New(context.Background(), Options{Config: cfg, Store: db, Metrics: metrics.New()})
	require.NoError(t, err)
	return &fixture{coord: c, db: db, root: root, show: filepath.Join(root, "tv", "Show Name")}
}

func (f *fixture) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.show, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewSeedsDefaultRules(t *testing.T) {
	f := setup(t)
	set, found, err := f.db.LoadRules(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, rules.DefaultSet(), set)
	assert.Equal(t, rules.DefaultSet(), f.coord.Rules())
}

func TestScanAppliesAndRollbackRestores(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	src := f.file(t, "Show.Name.S02E05.mkv", "episode")
	nfo := f.file(t, "Stray.S09E09.nfo", "<xml/>")
	target := filepath.Join(f.show, "Season 2", "Show Name - S02E05.mkv")

	res, err := f.coord.Scan(ctx, ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	require.Len(t, res.Applied, 2)
	assert.Equal(t, database.TriggerManual, res.Run.Trigger)
	assert.Equal(t, database.RunCompleted, res.Run.Status)
	assert.Equal(t, 1, res.Run.Counts.RenamedVideo)
	assert.Equal(t, 1, res.Run.Counts.DeletedNFO)
	assert.FileExists(t, target)
	assert.NoFileExists(t, nfo)

	again, err := f.coord.Scan(ctx, ScanRequest{})
	require.NoError(t, err)
	assert.Empty(t, again.Applied, "second scan finds nothing to do")

	rb, err := f.coord.RollbackSeason(ctx, database.SeasonQuery{MediaType: "tv", Show: "Show Name", Season: "Season 2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, rb.Outcome)
	require.Len(t, rb.RolledBack, 1)
	assert.FileExists(t, src)
	assert.NoFileExists(t, target)

	rb, err = f.coord.RollbackRun(ctx, res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePartiallyFailed, rb.Outcome)
	require.Len(t, rb.Failures, 1)
	assert.Equal(t, "not_reversible", rb.Failures[0].Reason)
	assert.NoFileExists(t, nfo, "deleted nfo is never recreated")
}

func TestOnWriteAnnouncesPathsBeforeTouchingThem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	src := f.file(t, "Show.Name.S01E04.mkv", "x")
	target := filepath.Join(f.show, "Season 1", "Show Name - S01E04.mkv")

	var announced [][]string
	f.coord.OnWrite(func(paths []string) {
		_, err := os.Stat(paths[0])
		assert.True(t, os.IsNotExist(err), "announced before the move")
		announced = append(announced, paths)
	})

	_, err := f.coord.Scan(ctx, ScanRequest{})
	require.NoError(t, err)
	_, err = f.coord.RollbackSeason(ctx, database.SeasonQuery{Show: "Show Name", Season: "Season 1"})
	require.NoError(t, err)

	require.Len(t, announced, 2)
	assert.Equal(t, []string{target}, announced[0])
	assert.Equal(t, []string{src}, announced[1])
}

func TestBusyRejectsOtherRuns(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.file(t, "Show.Name.S01E01.mkv", "x")

	tok, err := f.coord.acquire(KindScan, f.root)
	require.NoError(t, err)

	_, err = f.coord.RollbackSeason(ctx, database.SeasonQuery{Show: "Show Name", Season: "Season 1"})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.coord.Scan(ctx, ScanRequest{Path: "tv"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.coord.metrics.ScansRejected.WithLabelValues("rollback")))

	st, err := f.coord.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, tok.id, st.RunID)

	f.coord.release(tok)
	assert.False(t, f.coord.Busy())

	rb, err := f.coord.RollbackSeason(ctx, database.SeasonQuery{Show: "Show Name", Season: "Season 1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, rb.Outcome)
	assert.Zero(t, rb.Attempted)
}

func TestSubPathScanAndUnrenamedQueue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.file(t, "mystery.mkv", "?")
	other := filepath.Join(f.root, "tv", "Other", "Other.S01E01.mkv")
	require.NoError(t, os.MkdirAll(filepath.Dir(other), 0755))
	require.NoError(t, os.WriteFile(other, []byte("o"), 0644))

	res, err := f.coord.Scan(ctx, ScanRequest{Path: filepath.Join("tv", "Show Name")})
	require.NoError(t, err)
	assert.Equal(t, database.TriggerSubPath, res.Run.Trigger)
	assert.Empty(t, res.Applied)
	require.Len(t, res.Unrenamed, 1)
	assert.FileExists(t, other, "files outside the sub-path are untouched")

	queued, err := f.db.ListUnrenamed(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, filepath.Join(f.show, "mystery.mkv"), queued[0].Path)
	assert.Equal(t, "Show Name", queued[0].Show)

	_, err = f.coord.Scan(ctx, ScanRequest{Path: "/elsewhere"})
	assert.ErrorIs(t, err, scanner.ErrOutsideRoot)
}

func TestWhitelistedFilesAreNeverTouched(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	src := f.file(t, "Show.Name.S01E02.mkv", "x")
	_, err := f.coord.Whitelist().Add(ctx, whitelist.Entry{Path: src, Type: whitelist.TypeFile})
	require.NoError(t, err)

	res, err := f.coord.Scan(ctx, ScanRequest{})
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Empty(t, res.Unrenamed)
	assert.Equal(t, 1, res.Run.Counts.Skipped)
	assert.FileExists(t, src)
}

func TestOccupiedTargetIsLeftForTriage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.file(t, "Show.Name.S01E01.mkv", "one")
	dup := f.file(t, "Show.Name.S01E02.mkv", "two")
	f.file(t, "Season 1/Show Name - S01E02.mkv", "occupied")

	res, err := f.coord.Scan(ctx, ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	require.Len(t, res.Unrenamed, 1)
	assert.Equal(t, dup, res.Unrenamed[0].Path)
	assert.Len(t, res.Applied, 1)
	assert.FileExists(t, dup)
	assert.FileExists(t, filepath.Join(f.show, "Season 1", "Show Name - S01E01.mkv"))
}

func TestPreviewDoesNotTouchFiles(t *testing.T) {
	f := setup(t)
	src := f.file(t, "Show.Name.S03E01.mkv", "x")

	tok, err := f.coord.acquire(KindScan, f.root)
	require.NoError(t, err)
	defer f.coord.release(tok)

	plan, err := f.coord.Preview(context.Background(), "")
	require.NoError(t, err, "preview works while busy")
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, media.OpRename, plan.Operations[0].Operation)
	assert.FileExists(t, src)
}

func TestUpdateRulesRejectsInvalidWithoutApplying(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.coord.UpdateRules(ctx, rules.Set{SeasonEpisode: []string{`S(\d+)E(\d+)`, `(`}})
	assert.ErrorIs(t, err, rules.ErrInvalidPattern)
	assert.Equal(t, rules.DefaultSet(), f.coord.Rules())

	custom := rules.Set{SeasonEpisode: []string{`(\d+)x(\d+)`}}
	require.NoError(t, f.coord.UpdateRules(ctx, custom))
	assert.Equal(t, custom.SeasonEpisode, f.coord.Rules().SeasonEpisode)
	assert.Empty(t, f.coord.Rules().EpisodeOnly)

	stored, _, err := f.db.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom.SeasonEpisode, stored.SeasonEpisode)
	assert.Empty(t, stored.EpisodeOnly)

	src := f.file(t, "Show Name 2x03.mkv", "x")
	res, err := f.coord.Scan(ctx, ScanRequest{})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, src, res.Applied[0].Source)
	assert.Equal(t, filepath.Join(f.show, "Season 2", "Show Name - S02E03.mkv"), res.Applied[0].Destination)
}

func TestCancelWhenIdle(t *testing.T) {
	f := setup(t)
	assert.False(t, f.coord.Cancel())
}

func TestSchedulerSwitchPersists(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	assert.False(t, f.coord.SchedulerEnabled())

	require.NoError(t, f.coord.SetSchedulerEnabled(ctx, true))
	assert.True(t, f.coord.SchedulerEnabled())

	enabled, err := f.db.SchedulerEnabled(ctx, false)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestRunHistoryIsPruned(t *testing.T) {
	f := setup(t, func(c *config.Config) { c.Scan.KeepRuns = 2 })
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := f.coord.Scan(ctx, ScanRequest{})
		require.NoError(t, err)
	}
	runs, err := f.db.ListRuns(ctx, database.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
