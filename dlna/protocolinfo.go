package dlna

import (
	"strings"

	"github.com/anacrolix/mediabrowse/mediasource"
)

// Transfer protocols a renderer can fetch by itself.
var StreamableProtocols = map[string]bool{
	"http-get":     true,
	"rtsp-rtp-udp": true,
	"*":            true,
}

// ProtocolInfo is "<protocol>:<network>:<contentFormat>:<additionalInfo>" from a resource or a renderer's
// sink list.
type ProtocolInfo struct {
	Protocol       string
	Network        string
	ContentFormat  string
	AdditionalInfo string
}

// ParseProtocolInfo splits s into its fields. Missing fields are left empty.
func ParseProtocolInfo(s string) (ret ProtocolInfo) {
	fields := strings.SplitN(s, ":", 4)
	for i, f := range fields {
		switch i {
		case 0:
			ret.Protocol = f
		case 1:
			ret.Network = f
		case 2:
			ret.ContentFormat = f
		case 3:
			ret.AdditionalInfo = f
		}
	}
	return
}

func (me ProtocolInfo) String() string {
	return strings.Join([]string{me.Protocol, me.Network, me.ContentFormat, me.AdditionalInfo}, ":")
}

// IsStreamable reports whether a resource with the protocolInfo s can be streamed. Resources that don't
// declare one are assumed to be.
func IsStreamable(s string) bool {
	if s == "" {
		return true
	}
	return StreamableProtocols[strings.ToLower(ParseProtocolInfo(s).Protocol)]
}

// MimeType returns the content format of s, if there is one.
func MimeType(s string) string {
	return ParseProtocolInfo(s).ContentFormat
}

// NormalizeFormat lower-cases a content format, drops parameters and turns "x-" subtypes into plain
// ones, so that "audio/x-flac;q=1" and "audio/flac" compare equal.
func NormalizeFormat(s string) string {
	s = strings.ToLower(s)
	s = strings.Replace(s, "/x-", "/", 1)
	s, _, _ = strings.Cut(s, ";")
	return strings.TrimSpace(s)
}

// SinkFilter returns a content filter that passes media whose content type a renderer with the given sink
// protocol infos can play.
func SinkFilter(sinkProtocolInfo []string) mediasource.ContentFilter {
	var formats []string
	for _, s := range sinkProtocolInfo {
		pi := ParseProtocolInfo(strings.TrimSpace(s))
		if !StreamableProtocols[strings.ToLower(pi.Protocol)] {
			continue
		}
		format := NormalizeFormat(pi.ContentFormat)
		if format == "" {
			continue
		}
		formats = append(formats, format)
	}
	if len(formats) > 0 && formats[0] == "*" {
		return func(*mediasource.BrowseMedia) bool { return true }
	}
	return func(bm *mediasource.BrowseMedia) bool {
		ct := NormalizeFormat(bm.ContentType)
		major, _, ok := strings.Cut(ct, "/")
		if !ok {
			return false
		}
		for _, f := range formats {
			if f == ct || f == "*" || f == major+"/*" {
				return true
			}
		}
		return false
	}
}
