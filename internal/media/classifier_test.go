package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nomadcxx/embress/internal/rules"
	"github.com/Nomadcxx/embress/internal/transfer"
	"github.com/Nomadcxx/embress/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultTemplate = "{show}/Season {season}/{show} - S{season:02}E{episode:02}"

func newTestClassifier(t *testing.T, root string, wl *whitelist.Snapshot) *Classifier {
	t.Helper()
	return NewClassifier(Options{
		Layout:    NewLayout(root, map[string]string{"tv": "series", "anime": "series", "movies": "movie"}),
		Rules:     rules.MustCompile(rules.DefaultSet()),
		Whitelist: wl,
		Template:  MustParseTemplate(defaultTemplate),
	})
}

func byName(results []ClassifiedFile) map[string]ClassifiedFile {
	out := make(map[string]ClassifiedFile, len(results))
	for _, r := range results {
		out[filepath.Base(r.Path)] = r
	}
	return out
}

func TestClassify_ExampleRuleAndTemplate(t *testing.T) {
	root := t.TempDir()
	c := NewClassifier(Options{
		Layout:   NewLayout(root, nil),
		Rules:    rules.MustCompile(rules.Set{SeasonEpisode: []string{`S(\d+)E(\d+)`}}),
		Template: MustParseTemplate("{show}/Season {season}/{show} - S{season:02}E{episode:02}.mkv"),
	})

	showDir := filepath.Join(root, "tv", "Show Name")
	got := c.ClassifyDir(showDir, []string{"Show.Name.S02E05.mkv"})[0]

	require.Equal(t, StatusPending, got.Status)
	assert.Equal(t, OpRename, got.Operation)
	assert.Equal(t, filepath.Join(root, "tv", "Show Name", "Season 2", "Show Name - S02E05.mkv"), got.Target)
	assert.Equal(t, "Season 2", got.SeasonLabel)
	require.NotNil(t, got.Season)
	assert.Equal(t, 2, *got.Season)
	assert.Equal(t, 5, *got.Episode)

	// The renamed file is already canonical.
	again := c.ClassifyDir(filepath.Dir(got.Target), []string{filepath.Base(got.Target)})[0]
	assert.Equal(t, StatusCorrect, again.Status)
	assert.False(t, again.NeedsOperation())
}

func TestClassify_EpisodeOnlyUsesSeasonDirectory(t *testing.T) {
	root := t.TempDir()
	c := newTestClassifier(t, root, nil)

	dir := filepath.Join(root, "anime", "Frieren", "Season 03")
	got := c.ClassifyDir(dir, []string{"[Sub] Frieren - 05 [1080p].mkv"})[0]

	require.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "Season 3", got.SeasonLabel)
	assert.Equal(t, filepath.Join(root, "anime", "Frieren", "Season 3", "Frieren - S03E05.mkv"), got.Target)
	assert.Equal(t, "anime", got.Library)
	assert.Equal(t, MediaSeries, got.MediaType)
}

func TestClassify_UnknownSeasonDefaultsToOne(t *testing.T) {
	root := t.TempDir()
	c := newTestClassifier(t, root, nil)

	got := c.ClassifyDir(filepath.Join(root, "tv", "Show"), []string{"Show - 07 [720p].mkv"})[0]
	require.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.SeasonLabel)
	assert.Equal(t, 1, *got.Season)
	assert.Equal(t, filepath.Join(root, "tv", "Show", "Season 1", "Show - S01E07.mkv"), got.Target)
}

func TestClassifyDir_SidecarsAndMetadata(t *testing.T) {
	root := t.TempDir()
	c := newTestClassifier(t, root, nil)
	dir := filepath.Join(root, "tv", "Show", "Season 1")
	names := []string{
		"Show.S01E02.chs.ass",
		"Show.S01E02.mkv",
		"Show.S01E02-thumb.jpg",
		"Show.S01E02.nfo",
		"orphan.nfo",
		"poster.jpg",
		"tvshow.nfo",
		"notes.txt",
		"Random Clip.mkv",
	}
	got := byName(c.ClassifyDir(dir, names))

	video := got["Show.S01E02.mkv"]
	require.Equal(t, StatusPending, video.Status)
	assert.Equal(t, filepath.Join(dir, "Show - S01E02.mkv"), video.Target)

	sub := got["Show.S01E02.chs.ass"]
	require.Equal(t, StatusPending, sub.Status)
	assert.Equal(t, OpSubtitleRename, sub.Operation)
	assert.Equal(t, filepath.Join(dir, "Show - S01E02.chs.ass"), sub.Target)
	assert.Equal(t, video.Path, sub.Video)

	thumb := got["Show.S01E02-thumb.jpg"]
	assert.Equal(t, OpPictureRename, thumb.Operation)
	assert.Equal(t, filepath.Join(dir, "Show - S01E02-thumb.jpg"), thumb.Target)

	nfo := got["Show.S01E02.nfo"]
	assert.Equal(t, StatusPending, nfo.Status)
	assert.Equal(t, OpNFODelete, nfo.Operation)
	assert.Empty(t, nfo.Target)

	orphan := got["orphan.nfo"]
	assert.Equal(t, StatusPending, orphan.Status)
	assert.Equal(t, OpNFODelete, orphan.Operation)

	assert.Equal(t, StatusIgnored, got["poster.jpg"].Status)
	assert.Equal(t, StatusIgnored, got["tvshow.nfo"].Status)
	assert.Equal(t, StatusIgnored, got["notes.txt"].Status)

	random := got["Random Clip.mkv"]
	assert.Equal(t, StatusUnrenamed, random.Status)
	assert.Empty(t, random.Target)
}

func TestClassifyDir_LongestStemWins(t *testing.T) {
	root := t.TempDir()
	c := newTestClassifier(t, root, nil)
	dir := filepath.Join(root, "tv", "Show", "Season 1")

	got := byName(c.ClassifyDir(dir, []string{
		"Show S01E01.mkv",
		"Show S01E01 Part 2 S01E02.mkv",
		"Show S01E01 Part 2 S01E02.en.srt",
	}))
	sub := got["Show S01E01 Part 2 S01E02.en.srt"]
	assert.Equal(t, got["Show S01E01 Part 2 S01E02.mkv"].Path, sub.Video)
}

func TestClassifyDir_UnpairedSidecarUsesOwnMatch(t *testing.T) {
	root := t.TempDir()
	c := newTestClassifier(t, root, nil)
	dir := filepath.Join(root, "tv", "Show", "Season 1")

	got := c.ClassifyDir(dir, []string{"Show.S01E03.eng.forced.srt"})[0]
	require.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.Video)
	assert.Equal(t, filepath.Join(dir, "Show - S01E03.eng.forced.srt"), got.Target)
}

func TestClassifyDir_WhitelistedDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tv", "Show", "Season 1")
	wl := whitelist.NewSnapshot([]whitelist.Entry{{Path: dir, Type: whitelist.TypeDirectory}})
	c := newTestClassifier(t, root, wl)

	got := byName(c.ClassifyDir(dir, []string{"Show.S01E02.mkv", "Show.S01E02.srt", "weird name.mkv"}))
	assert.Equal(t, StatusSkipped, got["Show.S01E02.mkv"].Status)
	assert.Equal(t, StatusSkipped, got["Show.S01E02.srt"].Status)
	assert.Equal(t, StatusSkipped, got["weird name.mkv"].Status, "whitelisted files are never unrenamed")
}

func TestClassifyDir_SidecarFollowsWhitelistedVideo(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tv", "Show", "Season 1")
	wl := whitelist.NewSnapshot([]whitelist.Entry{{Path: filepath.Join(dir, "Show.S01E02.mkv"), Type: whitelist.TypeFile}})
	c := newTestClassifier(t, root, wl)

	got := byName(c.ClassifyDir(dir, []string{"Show.S01E02.mkv", "Show.S01E02.srt"}))
	assert.Equal(t, StatusSkipped, got["Show.S01E02.srt"].Status)
	assert.Equal(t, "paired video is whitelisted", got["Show.S01E02.srt"].Reason)
}

func TestClassifyDir_Movies(t *testing.T) {
	root := t.TempDir()
	c := newTestClassifier(t, root, nil)
	dir := filepath.Join(root, "movies", "Heat (1995)")

	got := byName(c.ClassifyDir(dir, []string{"heat.1995.1080p.mkv", "heat.1995.1080p.en.srt"}))
	video := got["heat.1995.1080p.mkv"]
	require.Equal(t, StatusPending, video.Status)
	assert.Equal(t, MediaMovie, video.MediaType)
	assert.Equal(t, filepath.Join(dir, "Heat (1995).mkv"), video.Target)
	assert.Nil(t, video.Season)
	assert.Equal(t, filepath.Join(dir, "Heat (1995).en.srt"), got["heat.1995.1080p.en.srt"].Target)

	two := byName(c.ClassifyDir(dir, []string{"cut1.mkv", "cut2.mkv"}))
	assert.Equal(t, StatusUnrenamed, two["cut1.mkv"].Status)
	assert.Equal(t, StatusUnrenamed, two["cut2.mkv"].Status)
}

func TestClassifyDir_OutsideShowAndExtras(t *testing.T) {
	root := t.TempDir()
	c := newTestClassifier(t, root, nil)

	stray := c.ClassifyDir(filepath.Join(root, "tv"), []string{"stray.S01E01.mkv"})[0]
	assert.Equal(t, StatusUnrenamed, stray.Status)

	extra := c.ClassifyDir(filepath.Join(root, "tv", "Show", "Extras"), []string{"Making of S01E01.mkv"})[0]
	assert.Equal(t, StatusIgnored, extra.Status)
}

func TestClassify_ReadsSiblingsFromDisk(t *testing.T) {
	root := t.TempDir()
	c := newTestClassifier(t, root, nil)
	dir := filepath.Join(root, "tv", "Show", "Season 1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Show - S01E01.mkv"), []byte("v"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Show - S01E01.nfo"), []byte("n"), 0644))

	nfo, err := c.Classify(context.Background(), filepath.Join(dir, "Show - S01E01.nfo"))
	require.NoError(t, err)
	assert.Equal(t, StatusCorrect, nfo.Status, "nfo of a correctly named video stays")
}

func TestClassify_ListsThroughBoundedFS(t *testing.T) {
	root := t.TempDir()
	c := NewClassifier(Options{
		Layout: NewLayout(root, map[string]string{"tv": "series"}),
		Rules:  rules.MustCompile(rules.DefaultSet()),
		FS:     transfer.New(time.Second),
	})

	_, err := c.Classify(context.Background(), filepath.Join(root, "tv", "Gone", "Gone S01E01.mkv"))
	require.Error(t, err)
	assert.Equal(t, "source_missing", transfer.ErrorReason(err))
}
