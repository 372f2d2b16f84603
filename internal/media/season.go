package media

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	seasonDirRe  = regexp.MustCompile(`(?i)^(?:season|series|staffel|saison|temporada)[\s._-]*(\d{1,3})\b`)
	shortDirRe   = regexp.MustCompile(`(?i)^s(\d{1,3})$`)
	cjkSeasonRe  = regexp.MustCompile(`第\s*(\d{1,3})\s*季`)
	specialsDirs = map[string]bool{"specials": true, "special": true, "extras season": true, "sp": true}
)

// SeasonFromDir extracts a season number from a directory name such as
// "Season 03", "S2", "第2季" or "Specials" (season 0).
func SeasonFromDir(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if specialsDirs[strings.ToLower(name)] {
		return 0, true
	}
	for _, re := range []*regexp.Regexp{seasonDirRe, shortDirRe, cjkSeasonRe} {
		if m := re.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// SeasonLabel is the human label stored with change records.
// An empty label means the season could not be inferred.
func SeasonLabel(season int) string {
	if season == 0 {
		return "Specials"
	}
	return fmt.Sprintf("Season %d", season)
}

// UnknownSeason is how an empty season label is displayed.
const UnknownSeason = "unknown season"

// SeasonLess orders labels numerically ("Season 2" before "Season 10"),
// Specials first and the unknown season last.
func SeasonLess(a, b string) bool {
	ka, kb := seasonSortKey(a), seasonSortKey(b)
	if ka != kb {
		return ka < kb
	}
	return a < b
}

func seasonSortKey(label string) int {
	if label == "" || label == UnknownSeason {
		return 1 << 30
	}
	if n, ok := SeasonFromDir(label); ok {
		return n
	}
	return 1<<30 - 1
}

// SortSeasonLabels sorts labels in place with SeasonLess.
func SortSeasonLabels(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool { return SeasonLess(labels[i], labels[j]) })
}
