package mediasource

import (
	"strings"
)

const URIScheme = "media-source://"

// Item is a parsed media source URI. An empty Domain addresses the root of all sources, and an empty
// Identifier the root of a domain.
type Item struct {
	Domain     string
	Identifier string
}

func (me Item) URI() string {
	return FormatURI(me.Domain, me.Identifier)
}

func (me Item) String() string {
	return me.URI()
}

// ParseURI splits a media-source URI into domain and identifier. ok is false if s is not a media-source
// URI. "media-source://domain/" is the same as "media-source://domain".
func ParseURI(s string) (domain, identifier string, ok bool) {
	rest, found := strings.CutPrefix(s, URIScheme)
	if !found {
		return
	}
	if rest == "" {
		ok = true
		return
	}
	domain, identifier, _ = strings.Cut(rest, "/")
	if !ValidDomain(domain) {
		return "", "", false
	}
	if strings.HasPrefix(identifier, "/") || strings.ContainsAny(identifier, "\r\n") {
		return "", "", false
	}
	ok = true
	return
}

func ParseItem(s string) (item Item, ok bool) {
	item.Domain, item.Identifier, ok = ParseURI(s)
	return
}

func FormatURI(domain, identifier string) string {
	switch {
	case domain == "":
		return URIScheme
	case identifier == "":
		return URIScheme + domain
	default:
		return URIScheme + domain + "/" + identifier
	}
}

// ValidDomain reports whether s is lowercase alphanumerics and single underscores, without a leading or
// trailing underscore.
func ValidDomain(s string) bool {
	if s == "" || s[0] == '_' || s[len(s)-1] == '_' || strings.Contains(s, "__") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
