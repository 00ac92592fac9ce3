package mediasource

import (
	"strings"
)

// Action says how the payload of a backend identifier addresses media.
type Action int

const (
	ActionNone Action = iota
	ActionObject
	ActionPath
	ActionSearch
)

const (
	ObjectFlag = ':'
	PathFlag   = '/'
	SearchFlag = '?'

	// Joins the parts of identifiers that need more than one key, such as an album within an artist.
	CompoundSeparator = "~~"
)

func (me Action) Flag() string {
	switch me {
	case ActionObject:
		return string(ObjectFlag)
	case ActionPath:
		return string(PathFlag)
	case ActionSearch:
		return string(SearchFlag)
	}
	return ""
}

func (me Action) String() string {
	switch me {
	case ActionNone:
		return "none"
	case ActionObject:
		return "object"
	case ActionPath:
		return "path"
	case ActionSearch:
		return "search"
	}
	return "unknown"
}

// ParseAction determines the action from the first character of s. Anything without a flag is a path.
func ParseAction(s string) (Action, string) {
	if s == "" {
		return ActionNone, ""
	}
	switch s[0] {
	case ObjectFlag:
		return ActionObject, s[1:]
	case PathFlag:
		return ActionPath, s[1:]
	case SearchFlag:
		return ActionSearch, s[1:]
	}
	return ActionPath, s
}

// ParseBackendIdentifier splits "<source_id>/<action><payload>". An empty identifier is the backend root
// and yields ActionNone.
func ParseBackendIdentifier(identifier string) (sourceID string, action Action, payload string) {
	if identifier == "" {
		return
	}
	sourceID, media, _ := strings.Cut(identifier, "/")
	action, payload = ParseAction(media)
	return
}

func FormatBackendIdentifier(sourceID string, action Action, payload string) string {
	return sourceID + "/" + action.Flag() + payload
}

// EscapeSearchLiteral escapes s for use inside a double quoted UPnP search criteria string.
func EscapeSearchLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func JoinCompound(parts ...string) string {
	return strings.Join(parts, CompoundSeparator)
}

func SplitCompound(s string) []string {
	return strings.Split(s, CompoundSeparator)
}
