package dms

import (
	"strings"

	"github.com/anacrolix/mediabrowse/mediasource"
)

const (
	Domain      = "dlna_dms"
	DefaultName = "DLNA Servers"

	RootObjectID = "0"
)

var (
	// Preferred order of children, intersected with what the server can sort by.
	DefaultSortCriteria = []string{"+upnp:class", "+upnp:originalTrackNumber", "+dc:title"}

	BrowseFilter  = []string{"id", "upnp:class", "dc:title", "res", "@childCount", "upnp:albumArtURI"}
	PathFilter    = []string{"id", "upnp:class", "dc:title"}
	ResolveFilter = []string{"*"}
)

var mediaClasses = map[string]mediasource.MediaClass{
	"object":                                          mediasource.ClassURL,
	"object.item":                                     mediasource.ClassURL,
	"object.item.imageItem":                           mediasource.ClassImage,
	"object.item.imageItem.photo":                     mediasource.ClassImage,
	"object.item.audioItem":                           mediasource.ClassMusic,
	"object.item.audioItem.musicTrack":                mediasource.ClassMusic,
	"object.item.audioItem.audioBroadcast":            mediasource.ClassMusic,
	"object.item.audioItem.audioBook":                 mediasource.ClassPodcast,
	"object.item.videoItem":                           mediasource.ClassVideo,
	"object.item.videoItem.movie":                     mediasource.ClassMovie,
	"object.item.videoItem.videoBroadcast":            mediasource.ClassTVShow,
	"object.item.videoItem.musicVideoClip":            mediasource.ClassVideo,
	"object.item.playlistItem":                        mediasource.ClassTrack,
	"object.item.textItem":                            mediasource.ClassURL,
	"object.item.bookmarkItem":                        mediasource.ClassURL,
	"object.item.epgItem":                             mediasource.ClassEpisode,
	"object.item.epgItem.audioProgram":                mediasource.ClassMusic,
	"object.item.epgItem.videoProgram":                mediasource.ClassVideo,
	"object.container":                                mediasource.ClassDirectory,
	"object.container.person":                         mediasource.ClassArtist,
	"object.container.person.musicArtist":             mediasource.ClassArtist,
	"object.container.playlistContainer":              mediasource.ClassPlaylist,
	"object.container.album":                          mediasource.ClassAlbum,
	"object.container.album.musicAlbum":               mediasource.ClassAlbum,
	"object.container.album.photoAlbum":               mediasource.ClassAlbum,
	"object.container.genre":                          mediasource.ClassGenre,
	"object.container.genre.musicGenre":               mediasource.ClassGenre,
	"object.container.genre.movieGenre":               mediasource.ClassGenre,
	"object.container.channelGroup":                   mediasource.ClassChannel,
	"object.container.channelGroup.audioChannelGroup": mediasource.ClassChannel,
	"object.container.channelGroup.videoChannelGroup": mediasource.ClassChannel,
	"object.container.epgContainer":                   mediasource.ClassDirectory,
	"object.container.storageSystem":                  mediasource.ClassDirectory,
	"object.container.storageVolume":                  mediasource.ClassDirectory,
	"object.container.storageFolder":                  mediasource.ClassDirectory,
	"object.container.bookmarkFolder":                 mediasource.ClassDirectory,
}

// MediaClass maps a upnp:class to a media class. Vendor subclasses get the class of their nearest known
// ancestor.
func MediaClass(upnpClass string) mediasource.MediaClass {
	for c := upnpClass; c != ""; {
		if mc, ok := mediaClasses[c]; ok {
			return mc
		}
		i := strings.LastIndexByte(c, '.')
		if i < 0 {
			break
		}
		c = c[:i]
	}
	return mediasource.ClassURL
}
