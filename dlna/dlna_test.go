package dlna

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anacrolix/mediabrowse/mediasource"
)

func TestContentFeaturesString(t *testing.T) {
	a := ContentFeatures{
		Transcoded:      true,
		SupportTimeSeek: true,
	}.String()
	e := "DLNA.ORG_OP=10;DLNA.ORG_CI=1"
	if e != a {
		t.Fatal(a)
	}
	assert.Equal(t, "DLNA.ORG_PN=MP3;DLNA.ORG_OP=01;DLNA.ORG_CI=0", ContentFeatures{ProfileName: "MP3", SupportRange: true}.String())
}

func TestFormatNPTTime(t *testing.T) {
	assert.Equal(t, "0:22:57.628", FormatNPTTime(1377628*time.Millisecond))
	assert.Equal(t, "1:02:03.000", FormatNPTTime(time.Hour+2*time.Minute+3*time.Second))
}

func TestIsStreamable(t *testing.T) {
	for s, expected := range map[string]bool{
		"":                        true,
		"http-get:*:audio/mpeg:*": true,
		"HTTP-GET:*:audio/mpeg:*": true,
		"rtsp-rtp-udp:*:MPA:":     true,
		"*:*:*:*":                 true,
		"internal:*:audio/mpeg:*": false,
		"xbmc-get:*:audio/mpeg:*": false,
	} {
		assert.Equal(t, expected, IsStreamable(s), s)
	}
}

func TestParseProtocolInfo(t *testing.T) {
	pi := ParseProtocolInfo("http-get:*:audio/mpeg:DLNA.ORG_PN=MP3;DLNA.ORG_OP=01")
	assert.Equal(t, "http-get", pi.Protocol)
	assert.Equal(t, "audio/mpeg", pi.ContentFormat)
	assert.Equal(t, "DLNA.ORG_PN=MP3;DLNA.ORG_OP=01", pi.AdditionalInfo)
	assert.Equal(t, "http-get:*:audio/mpeg:DLNA.ORG_PN=MP3;DLNA.ORG_OP=01", pi.String())
	assert.Equal(t, "", MimeType("http-get"))
	assert.Equal(t, "image/jpeg", MimeType("http-get:*:image/jpeg:*"))
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "audio/flac", NormalizeFormat("audio/x-flac"))
	assert.Equal(t, "audio/l16", NormalizeFormat("audio/L16;rate=44100;channels=2"))
	assert.Equal(t, "video/mp4", NormalizeFormat("video/mp4"))
}

func node(contentType string) *mediasource.BrowseMedia {
	return &mediasource.BrowseMedia{ContentType: contentType, CanPlay: true}
}

func TestSinkFilter(t *testing.T) {
	f := SinkFilter([]string{
		"http-get:*:audio/mpeg:*",
		"http-get:*:audio/x-flac:*",
		"http-get:*:image/*:*",
		"internal:*:video/mp4:*",
	})
	assert.True(t, f(node("audio/mpeg")))
	assert.True(t, f(node("audio/flac")))
	assert.True(t, f(node("audio/x-flac")))
	assert.True(t, f(node("image/png")))
	assert.False(t, f(node("video/mp4")))
	assert.False(t, f(node("object.item.audioItem")))
}

func TestSinkFilterWildcard(t *testing.T) {
	f := SinkFilter([]string{"http-get:*:*:*", "http-get:*:audio/mpeg:*"})
	assert.True(t, f(node("video/whatever")))
	assert.True(t, f(node("object.item")))
}

func TestSinkFilterAppliedByContentFilter(t *testing.T) {
	root := &mediasource.BrowseMedia{Children: []*mediasource.BrowseMedia{
		{Title: "Music", CanExpand: true, ContentType: "object.container"},
		node("audio/mpeg"),
		node("video/mp4"),
	}}
	SinkFilter([]string{"http-get:*:audio/mpeg:*"}).Apply(root)
	assert.Len(t, root.Children, 2)
	assert.Equal(t, 1, root.NotShown)
}
