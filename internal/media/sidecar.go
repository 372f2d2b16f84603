package media

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// Release-group style language codes that are not BCP 47 tags.
var langAliases = map[string]string{
	"chs": "zh-Hans", "sc": "zh-Hans", "gb": "zh-Hans", "zh-cn": "zh-Hans",
	"cht": "zh-Hant", "tc": "zh-Hant", "big5": "zh-Hant", "zh-tw": "zh-Hant",
	"eng": "en", "jpn": "ja", "jap": "ja", "chi": "zh", "kor": "ko",
}

var sidecarFlags = map[string]bool{
	"forced": true, "sdh": true, "cc": true, "hi": true, "default": true, "commentary": true,
}

// SplitSidecar splits a sidecar filename into its episode stem and the suffix
// that must survive a rename: trailing language tags and flags plus the
// extension. "Show.S01E02.chs.forced.ass" -> ("Show.S01E02", ".chs.forced.ass").
func SplitSidecar(name string) (stem, suffix string) {
	ext := filepath.Ext(name)
	stem = strings.TrimSuffix(name, ext)
	suffix = ext

	for i := 0; i < 3; i++ {
		dot := strings.LastIndex(stem, ".")
		if dot <= 0 {
			break
		}
		token := stem[dot+1:]
		if !isSidecarToken(token) {
			break
		}
		suffix = stem[dot:] + suffix
		stem = stem[:dot]
	}
	return stem, suffix
}

// SidecarLanguage returns the canonical language tag carried in a sidecar
// suffix, or "" when there is none.
func SidecarLanguage(suffix string) string {
	tokens := strings.Split(strings.Trim(suffix, "."), ".")
	// The final token is the file extension.
	for _, token := range tokens[:len(tokens)-1] {
		if tag, ok := parseLanguage(token); ok {
			return tag
		}
	}
	return ""
}

func isSidecarToken(token string) bool {
	if sidecarFlags[strings.ToLower(token)] {
		return true
	}
	_, ok := parseLanguage(token)
	return ok
}

func parseLanguage(token string) (string, bool) {
	lower := strings.ToLower(token)
	if alias, ok := langAliases[lower]; ok {
		return alias, true
	}
	// Bare two/three letter codes and region/script forms like pt-BR or zh-Hans.
	if len(token) < 2 || len(token) > 8 || !isLetterOrDash(token) {
		return "", false
	}
	if len(token) > 3 && !strings.Contains(token, "-") {
		return "", false
	}
	tag, err := language.Parse(token)
	if err != nil {
		return "", false
	}
	if base, conf := tag.Base(); conf == language.No || base.String() == "und" {
		return "", false
	}
	return tag.String(), true
}

func isLetterOrDash(s string) bool {
	for _, r := range s {
		if !(r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

// pairSuffix returns the part of a sidecar name that follows videoStem, or
// false when the sidecar does not belong to that video.
func pairSuffix(sidecarName, videoStem string) (string, bool) {
	if len(sidecarName) <= len(videoStem) || !strings.HasPrefix(sidecarName, videoStem) {
		return "", false
	}
	rest := sidecarName[len(videoStem):]
	switch rest[0] {
	case '.', '-', '_', ' ':
		return rest, true
	}
	return "", false
}
