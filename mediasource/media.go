package mediasource

// Semantic category of a browse node.
type MediaClass string

const (
	ClassAlbum              MediaClass = "album"
	ClassApp                MediaClass = "app"
	ClassArtist             MediaClass = "artist"
	ClassChannel            MediaClass = "channel"
	ClassComposer           MediaClass = "composer"
	ClassContributingArtist MediaClass = "contributing_artist"
	ClassDirectory          MediaClass = "directory"
	ClassEpisode            MediaClass = "episode"
	ClassGame               MediaClass = "game"
	ClassGenre              MediaClass = "genre"
	ClassImage              MediaClass = "image"
	ClassMovie              MediaClass = "movie"
	ClassMusic              MediaClass = "music"
	ClassPlaylist           MediaClass = "playlist"
	ClassPodcast            MediaClass = "podcast"
	ClassSeason             MediaClass = "season"
	ClassTrack              MediaClass = "track"
	ClassTVShow             MediaClass = "tv_show"
	ClassURL                MediaClass = "url"
	ClassVideo              MediaClass = "video"
)

// Content type tags used where a node has no MIME type.
const (
	TypeApp       = "app"
	TypeApps      = "apps"
	TypeChannel   = "channel"
	TypeChannels  = "channels"
	TypeDirectory = "directory"
	TypeImage     = "image"
	TypeMusic     = "music"
	TypePlaylist  = "playlist"
	TypeVideo     = "video"
)

// BrowseMedia is one node of a browse tree. Children is nil until the node has been expanded, and empty
// if it was expanded and has nothing in it.
type BrowseMedia struct {
	Domain             string         `json:"domain"`
	Identifier         string         `json:"identifier"`
	Title              string         `json:"title"`
	MediaClass         MediaClass     `json:"media_class"`
	ContentType        string         `json:"media_content_type"`
	ChildrenMediaClass MediaClass     `json:"children_media_class,omitempty"`
	CanPlay            bool           `json:"can_play"`
	CanExpand          bool           `json:"can_expand"`
	Thumbnail          string         `json:"thumbnail,omitempty"`
	Children           []*BrowseMedia `json:"children"`
	NotShown           int            `json:"not_shown"`
}

func (me *BrowseMedia) Item() Item {
	return Item{Domain: me.Domain, Identifier: me.Identifier}
}

// ContentID is the media-source URI that browses or resolves this node again.
func (me *BrowseMedia) ContentID() string {
	return FormatURI(me.Domain, me.Identifier)
}

func (me *BrowseMedia) Expanded() bool {
	return me.Children != nil
}

// CalculateChildrenClass sets ChildrenMediaClass to the class shared by all children, or directory if
// they differ.
func (me *BrowseMedia) CalculateChildrenClass() {
	if len(me.Children) == 0 {
		return
	}
	me.ChildrenMediaClass = ClassDirectory
	proposed := me.Children[0].MediaClass
	for _, c := range me.Children[1:] {
		if c.MediaClass != proposed {
			return
		}
	}
	me.ChildrenMediaClass = proposed
}

// PlayMedia is a resolved, directly playable URL.
type PlayMedia struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	// Backend specific, such as the DIDL-Lite object for DLNA sources.
	Metadata any `json:"metadata,omitempty"`
}
