// Package media classifies library files and computes their canonical names.
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Nomadcxx/embress/internal/pathcmp"
	"github.com/Nomadcxx/embress/internal/rules"
	"github.com/Nomadcxx/embress/internal/transfer"
	"github.com/Nomadcxx/embress/internal/whitelist"
)

// Status is the outcome of classifying one file.
type Status string

const (
	// StatusPending files need an operation.
	StatusPending Status = "pending"
	// StatusCorrect files already carry their canonical name.
	StatusCorrect Status = "correct"
	// StatusUnrenamed files could not be mapped confidently and need manual triage.
	StatusUnrenamed Status = "unrenamed"
	// StatusSkipped files are whitelisted.
	StatusSkipped Status = "skipped"
	// StatusIgnored files are not episode media (artwork, show nfo, extras, other types).
	StatusIgnored Status = "ignored"
)

// ClassifiedFile is the classifier's verdict for one path.
type ClassifiedFile struct {
	Path      string    `json:"path"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Library   string    `json:"library,omitempty"` // section directory name, e.g. "tv"
	MediaType MediaType `json:"media_type,omitempty"`
	Show      string    `json:"show,omitempty"`
	Season    *int      `json:"season,omitempty"`
	Episode   *int      `json:"episode,omitempty"`
	// SeasonLabel is empty when the season could not be inferred.
	SeasonLabel string `json:"season_label,omitempty"`
	// Target is set for pending renames and correct files; empty otherwise.
	Target    string    `json:"target,omitempty"`
	Operation Operation `json:"operation,omitempty"`
	// Video is the path of the video a sidecar or nfo was paired with.
	Video   string `json:"video,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// NeedsOperation reports whether the file belongs in the plan.
func (c ClassifiedFile) NeedsOperation() bool {
	return c.Status == StatusPending
}

// Location is where a path sits in the library layout
// root/<library>/<show>/[between...]/file.
type Location struct {
	Library   string
	MediaType MediaType
	ShowDir   string
	Show      string
	// Between holds directory names between the show directory and the file.
	Between []string
}

// Layout maps paths to library sections and shows.
type Layout struct {
	Root       string
	MediaTypes map[string]MediaType
}

// NewLayout builds a Layout from config values ("series" / "movie").
func NewLayout(root string, mediaTypes map[string]string) Layout {
	mt := make(map[string]MediaType, len(mediaTypes))
	for dir, kind := range mediaTypes {
		mt[strings.ToLower(dir)] = MediaType(kind)
	}
	return Layout{Root: filepath.Clean(root), MediaTypes: mt}
}

// Locate resolves the layout position of dir (a directory inside the library).
// ok is false when dir is the root or a section directory itself, or lies
// outside the root.
func (l Layout) Locate(dir string) (Location, bool) {
	if !pathcmp.Within(dir, l.Root) {
		return Location{}, false
	}
	rel, err := filepath.Rel(l.Root, dir)
	if err != nil || rel == "." {
		return Location{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return Location{}, false
	}

	mt, ok := l.MediaTypes[strings.ToLower(parts[0])]
	if !ok {
		mt = MediaSeries
	}
	return Location{
		Library:   parts[0],
		MediaType: mt,
		ShowDir:   filepath.Join(l.Root, parts[0], parts[1]),
		Show:      parts[1],
		Between:   parts[2:],
	}, true
}

// Options configure a Classifier.
type Options struct {
	Layout     Layout
	Rules      *rules.RuleSet
	Whitelist  *whitelist.Snapshot
	Template   *Template
	Extensions Extensions
	// FS lists sibling files for Classify.
	FS *transfer.FS
}

// Classifier is a pure function of path, rule snapshot and whitelist snapshot,
// so one instance may classify directories concurrently.
type Classifier struct {
	layout    Layout
	rules     *rules.RuleSet
	whitelist *whitelist.Snapshot
	template  *Template
	ext       Extensions
	fs        *transfer.FS
}

// NewClassifier returns a Classifier. Nil snapshots mean "no rules" and
// "nothing whitelisted".
func NewClassifier(opts Options) *Classifier {
	c := &Classifier{
		layout:    opts.Layout,
		rules:     opts.Rules,
		whitelist: opts.Whitelist,
		template:  opts.Template,
		ext:       opts.Extensions,
		fs:        opts.FS,
	}
	if c.fs == nil {
		c.fs = transfer.New(transfer.DefaultTimeout)
	}
	if c.rules == nil {
		c.rules = rules.MustCompile(rules.Set{})
	}
	if c.whitelist == nil {
		c.whitelist = whitelist.Empty()
	}
	if c.template == nil {
		c.template = MustParseTemplate("{show}/Season {season}/{show} - S{season:02}E{episode:02}")
	}
	if c.ext.byExt == nil {
		c.ext = DefaultExtensions()
	}
	return c
}

// Root returns the library root the layout resolves against.
func (c *Classifier) Root() string {
	return c.layout.Root
}

// ShowDir returns the show directory that dir lies in, or false when dir is
// the root, a section directory, or outside the library.
func (c *Classifier) ShowDir(dir string) (string, bool) {
	loc, ok := c.layout.Locate(dir)
	if !ok {
		return "", false
	}
	return loc.ShowDir, true
}

// Extensions returns the extension table in use.
func (c *Classifier) Extensions() Extensions {
	return c.ext
}

// Whitelist returns the whitelist snapshot in use.
func (c *Classifier) Whitelist() *whitelist.Snapshot {
	return c.whitelist
}

// Classify classifies a single file. Sibling files are listed so that
// sidecar and nfo pairing match what a directory scan would decide.
func (c *Classifier) Classify(ctx context.Context, path string) (ClassifiedFile, error) {
	dir, base := filepath.Dir(path), filepath.Base(path)
	entries, err := c.fs.ReadDir(ctx, dir)
	if err != nil {
		return ClassifiedFile{}, fmt.Errorf("classify %s: %w", path, err)
	}
	names := []string{base}
	for _, e := range entries {
		if e.Type().IsRegular() && e.Name() != base {
			names = append(names, e.Name())
		}
	}
	return c.ClassifyDir(dir, names)[0], nil
}

// ClassifyDir classifies the regular files names found in dir. Videos are
// resolved first so that sidecars and nfo files can pair with them.
// The result has one entry per name, in the order of names.
func (c *Classifier) ClassifyDir(dir string, names []string) []ClassifiedFile {
	loc, located := c.layout.Locate(dir)
	ignoredDir := located && inIgnoredDir(loc.Between)

	results := make([]ClassifiedFile, len(names))
	var videos []int
	for i, name := range names {
		path := filepath.Join(dir, name)
		cf := ClassifiedFile{Path: path, Kind: c.ext.KindOf(name)}
		if located {
			cf.Library, cf.MediaType, cf.Show = loc.Library, loc.MediaType, loc.Show
		}
		results[i] = cf
		if cf.Kind == KindVideo {
			videos = append(videos, i)
		}
	}

	movieVideos := 0
	for _, i := range videos {
		if !c.whitelist.IsExcluded(results[i].Path) {
			movieVideos++
		}
	}

	videoByStem := make(map[string]int, len(videos))
	stems := make([]string, 0, len(videos))
	for _, i := range videos {
		c.classifyVideo(&results[i], loc, located, ignoredDir, movieVideos)
		stem := strings.TrimSuffix(names[i], filepath.Ext(names[i]))
		videoByStem[stem] = i
		stems = append(stems, stem)
	}
	// Longest stems first so "Ep 1 Part 2" wins over "Ep 1" for "Ep 1 Part 2.srt".
	sort.Slice(stems, func(a, b int) bool { return len(stems[a]) > len(stems[b]) })

	for i, name := range names {
		cf := &results[i]
		switch {
		case cf.Kind.IsSidecar():
			c.classifySidecar(cf, name, loc, located, ignoredDir, stems, videoByStem, results)
		case cf.Kind == KindNFO:
			c.classifyNFO(cf, name, located, ignoredDir, videoByStem, results)
		case cf.Kind == KindOther:
			cf.Status = StatusIgnored
			cf.Reason = "not a media file"
		}
	}
	return results
}

func inIgnoredDir(between []string) bool {
	for _, d := range between {
		if IsIgnoredDir(d) {
			return true
		}
	}
	return false
}

func (c *Classifier) classifyVideo(cf *ClassifiedFile, loc Location, located, ignoredDir bool, movieVideos int) {
	name := filepath.Base(cf.Path)
	switch {
	case c.whitelist.IsExcluded(cf.Path):
		cf.Status = StatusSkipped
		cf.Reason = "whitelisted"
		return
	case strings.HasPrefix(name, "."):
		cf.Status = StatusIgnored
		cf.Reason = "hidden file"
		return
	case ignoredDir:
		cf.Status = StatusIgnored
		cf.Reason = "extras directory"
		return
	case !located:
		cf.Status = StatusUnrenamed
		cf.Reason = "not inside a show directory"
		return
	}

	ext := filepath.Ext(name)
	if loc.MediaType == MediaMovie {
		target := c.movieTarget(loc, ext)
		cf.Operation = OpRename
		if target == cf.Path {
			cf.Status, cf.Target = StatusCorrect, target
			return
		}
		if movieVideos > 1 {
			cf.Status = StatusUnrenamed
			cf.Reason = "multiple videos in movie folder"
			return
		}
		cf.Status, cf.Target = StatusPending, target
		return
	}

	c.nameEpisode(cf, name, ext, loc, OpRename)
}

// nameEpisode runs the pattern matcher over the file name and fills in
// identity and target. suffix is appended to the rendered name.
func (c *Classifier) nameEpisode(cf *ClassifiedFile, name, suffix string, loc Location, op Operation) {
	m, ok := c.rules.Match(name)
	if !ok {
		cf.Status = StatusUnrenamed
		cf.Reason = "no pattern matched"
		return
	}

	season, known := m.Season, m.HasSeason
	if !known {
		season, known = seasonFromBetween(loc.Between)
	}
	if !known {
		season = 1
	}
	episode := m.Episode

	cf.Season, cf.Episode = &season, &episode
	if known {
		cf.SeasonLabel = SeasonLabel(season)
	}
	cf.Pattern = m.Pattern
	cf.Operation = op

	rel := c.template.Render(Values{
		Show:    loc.Show,
		Season:  season,
		Episode: episode,
		Ext:     suffix,
	}, c.ext.Known)
	target := filepath.Join(c.layout.Root, loc.Library, filepath.FromSlash(rel))
	if !pathcmp.Within(target, filepath.Join(c.layout.Root, loc.Library)) {
		cf.Status = StatusUnrenamed
		cf.Reason = fmt.Sprintf("template escapes library section: %s", rel)
		return
	}

	cf.Target = target
	if target == cf.Path {
		cf.Status = StatusCorrect
	} else {
		cf.Status = StatusPending
	}
}

func (c *Classifier) movieTarget(loc Location, ext string) string {
	return filepath.Join(loc.ShowDir, loc.Show+ext)
}

// seasonFromBetween returns the season of the nearest season-like directory.
func seasonFromBetween(between []string) (int, bool) {
	for i := len(between) - 1; i >= 0; i-- {
		if n, ok := SeasonFromDir(between[i]); ok {
			return n, true
		}
	}
	return 0, false
}

// classifySidecar pairs a subtitle/audio/picture file with the sibling video
// whose stem is the longest prefix of the sidecar's name. Unpaired sidecars
// are named from their own pattern match.
func (c *Classifier) classifySidecar(cf *ClassifiedFile, name string, loc Location, located, ignoredDir bool, stems []string, videoByStem map[string]int, results []ClassifiedFile) {
	op, _ := OperationFor(cf.Kind)
	switch {
	case c.whitelist.IsExcluded(cf.Path):
		cf.Status, cf.Reason = StatusSkipped, "whitelisted"
		return
	case strings.HasPrefix(name, "."):
		cf.Status, cf.Reason = StatusIgnored, "hidden file"
		return
	case ignoredDir:
		cf.Status, cf.Reason = StatusIgnored, "extras directory"
		return
	}

	for _, stem := range stems {
		suffix, ok := pairSuffix(name, stem)
		if !ok {
			continue
		}
		video := results[videoByStem[stem]]
		cf.Video = video.Path
		cf.Season, cf.Episode, cf.SeasonLabel = video.Season, video.Episode, video.SeasonLabel
		cf.Pattern = video.Pattern

		switch video.Status {
		case StatusSkipped:
			cf.Status, cf.Reason = StatusSkipped, "paired video is whitelisted"
		case StatusIgnored:
			cf.Status, cf.Reason = StatusIgnored, "paired video is ignored"
		case StatusUnrenamed:
			cf.Status, cf.Reason = StatusUnrenamed, "paired video is unrenamed"
		default:
			videoTarget := video.Target
			target := strings.TrimSuffix(videoTarget, filepath.Ext(videoTarget)) + suffix
			cf.Operation, cf.Target = op, target
			if target == cf.Path {
				cf.Status = StatusCorrect
			} else {
				cf.Status = StatusPending
			}
		}
		return
	}

	if IsArtwork(name) {
		cf.Status, cf.Reason = StatusIgnored, "show artwork"
		return
	}
	if !located {
		cf.Status, cf.Reason = StatusUnrenamed, "not inside a show directory"
		return
	}
	if loc.MediaType == MediaMovie {
		cf.Status, cf.Reason = StatusUnrenamed, "no matching video"
		return
	}

	_, suffix := SplitSidecar(name)
	c.nameEpisode(cf, name, suffix, loc, op)
}

// classifyNFO marks episode nfo files for deletion when their video is being
// renamed or no longer exists. Show and season level nfo files are left alone.
func (c *Classifier) classifyNFO(cf *ClassifiedFile, name string, located, ignoredDir bool, videoByStem map[string]int, results []ClassifiedFile) {
	switch {
	case c.whitelist.IsExcluded(cf.Path):
		cf.Status, cf.Reason = StatusSkipped, "whitelisted"
		return
	case IsShowMetadata(name) || strings.HasPrefix(name, "."):
		cf.Status, cf.Reason = StatusIgnored, "show metadata"
		return
	case ignoredDir || !located:
		cf.Status, cf.Reason = StatusIgnored, "outside episode directories"
		return
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	idx, paired := videoByStem[stem]
	if !paired {
		cf.Status, cf.Operation = StatusPending, OpNFODelete
		cf.Reason = "no matching video"
		return
	}

	video := results[idx]
	cf.Video = video.Path
	cf.Season, cf.Episode, cf.SeasonLabel = video.Season, video.Episode, video.SeasonLabel
	switch video.Status {
	case StatusPending:
		cf.Status, cf.Operation = StatusPending, OpNFODelete
		cf.Reason = "video is being renamed"
	case StatusCorrect:
		cf.Status, cf.Target = StatusCorrect, cf.Path
	default:
		cf.Status, cf.Reason = StatusIgnored, "video left in place"
	}
}
