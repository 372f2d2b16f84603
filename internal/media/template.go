package media

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([a-z]+)(?::(\d{1,2}))?\}`)

// Template renders canonical paths relative to a library section directory.
//
// Placeholders: {show}, {season}, {episode}, {ext}. Numbers accept a zero-pad
// width, e.g. {episode:02}. Without {ext} the source extension is appended.
type Template struct {
	raw   string
	parts []templatePart
	ext   bool
}

type templatePart struct {
	literal string
	field   string
	width   int
}

// Values fills a Template.
type Values struct {
	Show    string
	Season  int
	Episode int
	Ext     string // including the leading dot and any sidecar suffix
}

// ParseTemplate validates raw and prepares it for rendering.
func ParseTemplate(raw string) (*Template, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty template")
	}
	if strings.HasPrefix(raw, "/") || strings.Contains(raw, "..") || strings.Contains(raw, `\`) {
		return nil, fmt.Errorf("template must be a relative path using '/': %q", raw)
	}

	t := &Template{raw: raw}
	last := 0
	hasShow, hasEpisode := false, false
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(raw, -1) {
		if loc[0] > last {
			t.parts = append(t.parts, templatePart{literal: raw[last:loc[0]]})
		}
		field := raw[loc[2]:loc[3]]
		width := 0
		if loc[4] >= 0 {
			width, _ = strconv.Atoi(raw[loc[4]:loc[5]])
		}
		switch field {
		case "show":
			hasShow = true
		case "episode":
			hasEpisode = true
		case "season":
		case "ext":
			t.ext = true
		default:
			return nil, fmt.Errorf("unknown placeholder {%s}", field)
		}
		if width > 0 && (field == "show" || field == "ext") {
			return nil, fmt.Errorf("placeholder {%s} does not take a width", field)
		}
		t.parts = append(t.parts, templatePart{field: field, width: width})
		last = loc[1]
	}
	if last < len(raw) {
		t.parts = append(t.parts, templatePart{literal: raw[last:]})
	}
	if strings.ContainsAny(strings.Join(literals(t.parts), ""), "{}") {
		return nil, fmt.Errorf("malformed placeholder in %q", raw)
	}
	if !hasShow || !hasEpisode {
		return nil, fmt.Errorf("template must contain {show} and {episode}: %q", raw)
	}
	return t, nil
}

func literals(parts []templatePart) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.literal)
	}
	return out
}

// MustParseTemplate panics on an invalid template.
func MustParseTemplate(raw string) *Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template source.
func (t *Template) String() string { return t.raw }

// Render produces a slash-separated relative path. When the template has no
// {ext}, a trailing literal extension in the template (".mkv") is replaced
// by v.Ext so that one template serves every container and sidecar.
func (t *Template) Render(v Values, known func(ext string) bool) string {
	var sb strings.Builder
	for _, p := range t.parts {
		switch p.field {
		case "":
			sb.WriteString(p.literal)
		case "show":
			sb.WriteString(v.Show)
		case "season":
			sb.WriteString(pad(v.Season, p.width))
		case "episode":
			sb.WriteString(pad(v.Episode, p.width))
		case "ext":
			sb.WriteString(strings.TrimPrefix(v.Ext, "."))
		}
	}
	out := sb.String()
	if t.ext {
		return out
	}
	if dot := strings.LastIndex(out, "."); dot > strings.LastIndex(out, "/") && known != nil && known(out[dot:]) {
		out = out[:dot]
	}
	return out + v.Ext
}

func pad(n, width int) string {
	if width <= 0 {
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%0*d", width, n)
}
