package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Match is the identity extracted from a filename.
type Match struct {
	Season    int
	HasSeason bool // false for episode_only matches; the caller resolves the season
	Episode   int
	// Show is set when the winning pattern has a named "show" group.
	Show    string
	List    string
	Pattern string
}

type pattern struct {
	source  string
	re      *regexp.Regexp
	season  int // submatch index, -1 when absent
	episode int
	show    int
	// last selects the final occurrence in the name instead of the first.
	last bool
}

// RuleSet is a compiled, immutable snapshot of a Set.
type RuleSet struct {
	source        Set
	seasonEpisode []pattern
	episodeOnly   []pattern
}

// Compile validates every pattern in s and returns the compiled snapshot.
// Nothing is returned unless all patterns compile, so a bad edit never
// partially replaces a working rule set.
func Compile(s Set) (*RuleSet, error) {
	rs := &RuleSet{source: s.Clone()}

	for i, src := range s.SeasonEpisode {
		p, err := compilePattern(src, true)
		if err != nil {
			return nil, &PatternError{List: ListSeasonEpisode, Index: i, Pattern: src, Err: err}
		}
		rs.seasonEpisode = append(rs.seasonEpisode, p)
	}
	for i, src := range s.EpisodeOnly {
		p, err := compilePattern(src, false)
		if err != nil {
			return nil, &PatternError{List: ListEpisodeOnly, Index: i, Pattern: src, Err: err}
		}
		rs.episodeOnly = append(rs.episodeOnly, p)
	}
	return rs, nil
}

// MustCompile is Compile for rule sets known to be valid.
func MustCompile(s Set) *RuleSet {
	rs, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return rs
}

// Validate reports the first invalid pattern in s.
func Validate(s Set) error {
	_, err := Compile(s)
	return err
}

func compilePattern(src string, wantSeason bool) (pattern, error) {
	if strings.TrimSpace(src) == "" {
		return pattern{}, errors.New("empty pattern")
	}

	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		if hasLookaround(src) {
			return pattern{}, fmt.Errorf("lookaround assertions are not supported: %w", err)
		}
		return pattern{}, err
	}

	p := pattern{
		source:  src,
		re:      re,
		season:  re.SubexpIndex("season"),
		episode: re.SubexpIndex("episode"),
		show:    re.SubexpIndex("show"),
	}

	// Unnamed patterns use positional groups: (season, episode) or (episode).
	if p.episode < 0 {
		n := re.NumSubexp()
		switch {
		case wantSeason && n >= 2:
			p.season, p.episode = 1, 2
		case !wantSeason && n >= 1:
			p.episode = 1
		}
	}
	if p.episode < 0 {
		if wantSeason {
			return pattern{}, errors.New("needs two capture groups (season, episode) or named groups")
		}
		return pattern{}, errors.New("needs a capture group for the episode")
	}
	if wantSeason && p.season < 0 {
		return pattern{}, errors.New("needs a season group")
	}

	p.last = !wantSeason && strings.HasPrefix(src, `\[`)
	return p, nil
}

func hasLookaround(src string) bool {
	for _, tok := range []string{"(?=", "(?!", "(?<=", "(?<!"} {
		if strings.Contains(src, tok) {
			return true
		}
	}
	return false
}

// Source returns a copy of the Set this snapshot was compiled from.
func (r *RuleSet) Source() Set {
	return r.source.Clone()
}

// Match tries season_episode patterns in order, then episode_only patterns.
// The first pattern that yields valid numbers wins. ok is false when nothing
// matched, which callers treat as "needs manual handling", not an error.
func (r *RuleSet) Match(filename string) (Match, bool) {
	for _, p := range r.seasonEpisode {
		if m, ok := p.apply(filename); ok {
			m.List = ListSeasonEpisode
			return m, true
		}
	}
	for _, p := range r.episodeOnly {
		if m, ok := p.apply(filename); ok {
			m.List = ListEpisodeOnly
			return m, true
		}
	}
	return Match{}, false
}

func (p pattern) apply(name string) (Match, bool) {
	var sub []string
	if p.last {
		all := p.re.FindAllStringSubmatch(name, -1)
		if len(all) == 0 {
			return Match{}, false
		}
		sub = all[len(all)-1]
	} else {
		sub = p.re.FindStringSubmatch(name)
		if sub == nil {
			return Match{}, false
		}
	}

	ep, err := strconv.Atoi(sub[p.episode])
	if err != nil {
		return Match{}, false
	}
	m := Match{Episode: ep, Pattern: p.source}

	if p.season >= 0 {
		s, err := strconv.Atoi(sub[p.season])
		if err != nil {
			return Match{}, false
		}
		m.Season, m.HasSeason = s, true
	}
	if p.show >= 0 {
		m.Show = strings.TrimSpace(sub[p.show])
	}
	return m, true
}
