package database

import "strings"

var titleReplacer = strings.NewReplacer(
	" ", "", ".", "", "-", "", "_", "",
	"'", "", ":", "", "&", "", "*", "",
	",", "", "!", "", "?", "",
	"(", "", ")", "",
	"[", "", "]", "",
)

// NormalizeTitle converts a show name to the key used for lookups.
// "For All Mankind (2019)" -> "forallmankind2019"
// "M*A*S*H" -> "mash"
func NormalizeTitle(title string) string {
	return titleReplacer.Replace(strings.ToLower(strings.TrimSpace(title)))
}

// likePrefix returns a LIKE pattern matching every path below dir.
func likePrefix(dir string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSuffix(dir, "/"))
	return escaped + "/%"
}
