package media

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Kind is the detected file category.
type Kind string

const (
	KindVideo    Kind = "video"
	KindSubtitle Kind = "subtitle"
	KindAudio    Kind = "audio"
	KindPicture  Kind = "picture"
	KindNFO      Kind = "nfo"
	KindOther    Kind = "other"
)

// IsSidecar reports whether k travels with a video.
func (k Kind) IsSidecar() bool {
	return k == KindSubtitle || k == KindAudio || k == KindPicture
}

// MediaType is the library section kind.
type MediaType string

const (
	MediaSeries MediaType = "series"
	MediaMovie  MediaType = "movie"
)

var (
	defaultVideo    = []string{".mkv", ".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".ts", ".m2ts"}
	defaultSubtitle = []string{".ass", ".ssa", ".srt", ".vtt", ".sub", ".idx", ".sup"}
	defaultAudio    = []string{".mka", ".mp3", ".flac", ".aac", ".m4a", ".ogg", ".opus", ".ac3", ".dts", ".wav"}
	defaultPicture  = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif", ".tbn"}
)

// Extensions maps lowercase extensions (with dot) to kinds.
type Extensions struct {
	byExt map[string]Kind
}

// DefaultExtensions returns the built-in extension lists.
func DefaultExtensions() Extensions {
	return NewExtensions(nil, nil, nil, nil)
}

// NewExtensions builds a lookup table. Empty lists fall back to the defaults.
func NewExtensions(video, subtitle, audio, picture []string) Extensions {
	e := Extensions{byExt: map[string]Kind{".nfo": KindNFO}}
	add := func(list, fallback []string, k Kind) {
		if len(list) == 0 {
			list = fallback
		}
		for _, ext := range list {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			e.byExt[ext] = k
		}
	}
	add(video, defaultVideo, KindVideo)
	add(subtitle, defaultSubtitle, KindSubtitle)
	add(audio, defaultAudio, KindAudio)
	add(picture, defaultPicture, KindPicture)
	return e
}

// KindOf classifies a file by extension.
func (e Extensions) KindOf(name string) Kind {
	if k, ok := e.byExt[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}
	return KindOther
}

// Known reports whether ext (with dot) belongs to any kind.
func (e Extensions) Known(ext string) bool {
	_, ok := e.byExt[strings.ToLower(ext)]
	return ok
}

// Library artwork and metadata that belong to a show or season, not an episode.
var (
	artworkNames = map[string]bool{
		"poster": true, "folder": true, "cover": true, "default": true, "movie": true,
		"fanart": true, "backdrop": true, "background": true, "art": true,
		"banner": true, "landscape": true, "thumb": true, "logo": true,
		"clearlogo": true, "clearart": true, "disc": true, "cdart": true,
		"discart": true, "theme": true, "characterart": true, "keyart": true,
	}
	artworkPattern = regexp.MustCompile(`(?i)^(?:season\d*|season-specials|season-all|backdrop\d+|fanart\d+)(?:-(?:poster|banner|fanart|landscape|thumb))?$`)

	showNFONames = map[string]bool{"tvshow.nfo": true, "season.nfo": true, "movie.nfo": true}

	ignoredDirs = map[string]bool{
		"extras": true, "featurettes": true, "behind the scenes": true,
		"deleted scenes": true, "interviews": true, "scenes": true,
		"shorts": true, "trailers": true, "other": true, "samples": true,
		"sample": true, "subs": true, "subtitles": true, "metadata": true,
		".actors": true, "@eadir": true,
	}
)

// IsArtwork reports whether name is show or season artwork.
func IsArtwork(name string) bool {
	stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	return artworkNames[stem] || artworkPattern.MatchString(stem)
}

// IsShowMetadata reports whether name is a show/season level nfo.
func IsShowMetadata(name string) bool {
	return showNFONames[strings.ToLower(name)]
}

// IsIgnoredDir reports whether files below a directory called name are never touched.
func IsIgnoredDir(name string) bool {
	return ignoredDirs[strings.ToLower(name)]
}
