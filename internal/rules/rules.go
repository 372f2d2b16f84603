// Package rules holds the ordered regular-expression rule sets used to pull
// season and episode numbers out of filenames.
//
// A Set is the editable, persisted form. Compile turns it into an immutable
// RuleSet; scans capture one RuleSet when they start, and updating the rules
// produces a new RuleSet rather than mutating the one a scan is using.
package rules

import (
	"errors"
	"fmt"
)

// List names
const (
	ListSeasonEpisode = "season_episode"
	ListEpisodeOnly   = "episode_only"
)

// Set is the serializable rule configuration. Order is precedence.
type Set struct {
	SeasonEpisode []string `json:"season_episode"`
	EpisodeOnly   []string `json:"episode_only"`
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	return Set{
		SeasonEpisode: append([]string(nil), s.SeasonEpisode...),
		EpisodeOnly:   append([]string(nil), s.EpisodeOnly...),
	}
}

// DefaultSet returns the rules shipped with the binary.
func DefaultSet() Set {
	return Set{
		SeasonEpisode: []string{
			`S(\d{1,2})E(\d{1,3})`,
			`第(\d{1,2})季.?第(\d{1,3})集`,
			`Season\s(\d{1,2}).?Episode\s(\d{1,3})`,
			`\[(\d{1,2})\]\[(\d{1,3})\]`,
			`-\s(\d{1,2})\s-\s*(\d{1,3})`,
			`\.(\d{1,2})\.(\d{1,3})\.`,
		},
		EpisodeOnly: []string{
			`\[(\d{1,3})\]`,
			`第(\d{1,3})集`,
			`Episode\s(\d{1,3})`,
			`-\s(\d{1,3})\s-`,
			`(?:^|[^a-z0-9])E(\d{1,3})(?:\D|$)`,
			`-\s(\d{1,3})(?:\s|\.|\[|$)`,
			`\s(\d{1,3})\s\[`,
			`\s(\d{1,3})\s\(`,
		},
	}
}

// ErrInvalidPattern is matched by every PatternError.
var ErrInvalidPattern = errors.New("invalid pattern")

// PatternError identifies the rule that failed to compile.
type PatternError struct {
	List    string
	Index   int
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("%s[%d] %q: %v", e.List, e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() []error {
	return []error{ErrInvalidPattern, e.Err}
}
