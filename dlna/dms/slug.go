package dms

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Strips accents so that "Café" and "Cafe" share an ID.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lower-cases s, folds accents and joins the remaining runs of letters and digits with "_".
func Slugify(s string) string {
	folded, _, err := transform.String(foldAccents, s)
	if err == nil {
		s = folded
	}
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if 'a' <= r && r <= 'z' || '0' <= r && r <= '9' {
			if pendingSep && b.Len() != 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// GenerateSourceID returns the slug of name, suffixed with "_1", "_2" and so on until it isn't a key of
// existing.
func GenerateSourceID[V any](name string, existing map[string]V) string {
	base := Slugify(name)
	id := base
	for i := 1; ; i++ {
		if _, ok := existing[id]; !ok {
			return id
		}
		id = base + "_" + strconv.Itoa(i)
	}
}
