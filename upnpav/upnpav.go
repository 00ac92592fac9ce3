package upnpav

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	NoSuchObjectErrorCode          = 701
	InvalidSearchCriteriaErrorCode = 708
	InvalidSortCriteriaErrorCode   = 709
	NoSuchContainerErrorCode       = 710
	RestrictedObjectErrorCode      = 711
	CannotProcessRequestErrorCode  = 720
)

const (
	DIDLLiteNS = "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"
	UPnPNS     = "urn:schemas-upnp-org:metadata-1-0/upnp/"
	DCNS       = "http://purl.org/dc/elements/1.1/"
	DLNANS     = "urn:schemas-dlna-org:metadata-1-0/"
)

type Resource struct {
	ProtocolInfo string `xml:"protocolInfo,attr" json:"protocol_info"`
	URL          string `xml:",chardata" json:"url"`
	Size         uint64 `xml:"size,attr,omitempty" json:"size,omitempty"`
	Bitrate      uint   `xml:"bitrate,attr,omitempty" json:"bitrate,omitempty"`
	Duration     string `xml:"duration,attr,omitempty" json:"duration,omitempty"`
	Resolution   string `xml:"resolution,attr,omitempty" json:"resolution,omitempty"`
}

// Entry is a top-level element of a DIDL-Lite document: an *Object or a *Descriptor.
type Entry interface {
	EntryID() string
}

// Object is a DIDL-Lite item or container. Element names are matched without their namespace, as
// servers are not consistent about declaring them.
type Object struct {
	ID                  string     `xml:"id,attr" json:"id"`
	ParentID            string     `xml:"parentID,attr" json:"parent_id"`
	Restricted          string     `xml:"restricted,attr" json:"-"`
	ChildCount          int        `xml:"childCount,attr" json:"child_count,omitempty"`
	Class               string     `xml:"class" json:"class"`
	Title               string     `xml:"title" json:"title"`
	Creator             string     `xml:"creator" json:"creator,omitempty"`
	Artist              string     `xml:"artist" json:"artist,omitempty"`
	Album               string     `xml:"album" json:"album,omitempty"`
	Genre               string     `xml:"genre" json:"genre,omitempty"`
	Date                string     `xml:"date" json:"date,omitempty"`
	OriginalTrackNumber int        `xml:"originalTrackNumber" json:"original_track_number,omitempty"`
	AlbumArtURI         string     `xml:"albumArtURI" json:"album_art_uri,omitempty"`
	Res                 []Resource `xml:"res" json:"res,omitempty"`
	Container           bool       `xml:"-" json:"container"`
}

func (me *Object) EntryID() string {
	return me.ID
}

func (me *Object) IsContainer() bool {
	return me.Container || strings.HasPrefix(me.Class, "object.container")
}

func (me *Object) String() string {
	return fmt.Sprintf("%s(id=%q, title=%q)", me.Class, me.ID, me.Title)
}

// Descriptor is a bare metadata block at the top level of a result.
type Descriptor struct {
	ID        string `xml:"id,attr"`
	Type      string `xml:"type,attr"`
	NameSpace string `xml:"nameSpace,attr"`
	Text      string `xml:",innerxml"`
}

func (me *Descriptor) EntryID() string {
	return me.ID
}

func (me *Descriptor) String() string {
	return fmt.Sprintf("Descriptor(id=%q, nameSpace=%q)", me.ID, me.NameSpace)
}

// ParseDIDLLite returns the entries of a DIDL-Lite document in document order.
func ParseDIDLLite(s string) (ret []Entry, err error) {
	d := xml.NewDecoder(strings.NewReader(s))
	d.CharsetReader = charset.NewReaderLabel
	d.Strict = false
	d.Entity = xml.HTMLEntity
	depth := 0
	for {
		var tok xml.Token
		tok, err = d.Token()
		if err == io.EOF {
			return ret, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parsing DIDL-Lite: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if t.Name.Local != "DIDL-Lite" {
					return nil, fmt.Errorf("parsing DIDL-Lite: unexpected root element %q", t.Name.Local)
				}
				depth++
				continue
			}
			entry, err := decodeEntry(d, t)
			if err != nil {
				return nil, fmt.Errorf("parsing DIDL-Lite %s: %w", t.Name.Local, err)
			}
			if entry != nil {
				ret = append(ret, entry)
			}
		case xml.EndElement:
			depth--
		}
	}
}

func decodeEntry(d *xml.Decoder, start xml.StartElement) (Entry, error) {
	switch start.Name.Local {
	case "item", "container":
		var obj Object
		if err := d.DecodeElement(&obj, &start); err != nil {
			return nil, err
		}
		obj.Container = start.Name.Local == "container"
		return &obj, nil
	case "desc":
		var desc Descriptor
		if err := d.DecodeElement(&desc, &start); err != nil {
			return nil, err
		}
		return &desc, nil
	}
	return nil, d.Skip()
}

type didlLite struct {
	XMLName xml.Name `xml:"DIDL-Lite"`
	NS      string   `xml:"xmlns,attr"`
	DCNS    string   `xml:"xmlns:dc,attr"`
	UPnPNS  string   `xml:"xmlns:upnp,attr"`
	DLNANS  string   `xml:"xmlns:dlna,attr"`
	Entries []any
}

// Marshalled form, with the prefixes declared on the root element.
type didlObject struct {
	ID                  string     `xml:"id,attr"`
	ParentID            string     `xml:"parentID,attr"`
	Restricted          string     `xml:"restricted,attr"`
	ChildCount          *int       `xml:"childCount,attr,omitempty"`
	Title               string     `xml:"dc:title"`
	Creator             string     `xml:"dc:creator,omitempty"`
	Date                string     `xml:"dc:date,omitempty"`
	Class               string     `xml:"upnp:class"`
	Artist              string     `xml:"upnp:artist,omitempty"`
	Album               string     `xml:"upnp:album,omitempty"`
	Genre               string     `xml:"upnp:genre,omitempty"`
	OriginalTrackNumber int        `xml:"upnp:originalTrackNumber,omitempty"`
	AlbumArtURI         string     `xml:"upnp:albumArtURI,omitempty"`
	Res                 []Resource `xml:"res"`
}

type didlItem struct {
	XMLName xml.Name `xml:"item"`
	didlObject
}

type didlContainer struct {
	XMLName xml.Name `xml:"container"`
	didlObject
}

type didlDesc struct {
	XMLName xml.Name `xml:"desc"`
	Descriptor
}

// MarshalDIDLLite encodes entries as a DIDL-Lite document.
func MarshalDIDLLite(entries ...Entry) (string, error) {
	doc := didlLite{
		NS:     DIDLLiteNS,
		DCNS:   DCNS,
		UPnPNS: UPnPNS,
		DLNANS: DLNANS,
	}
	for _, e := range entries {
		switch e := e.(type) {
		case *Object:
			o := didlObject{
				ID:                  e.ID,
				ParentID:            e.ParentID,
				Restricted:          e.Restricted,
				Title:               e.Title,
				Creator:             e.Creator,
				Date:                e.Date,
				Class:               e.Class,
				Artist:              e.Artist,
				Album:               e.Album,
				Genre:               e.Genre,
				OriginalTrackNumber: e.OriginalTrackNumber,
				AlbumArtURI:         e.AlbumArtURI,
				Res:                 e.Res,
			}
			if o.Restricted == "" {
				o.Restricted = "1"
			}
			if e.IsContainer() {
				childCount := e.ChildCount
				o.ChildCount = &childCount
				doc.Entries = append(doc.Entries, didlContainer{didlObject: o})
			} else {
				doc.Entries = append(doc.Entries, didlItem{didlObject: o})
			}
		case *Descriptor:
			doc.Entries = append(doc.Entries, didlDesc{Descriptor: *e})
		default:
			return "", fmt.Errorf("unhandled DIDL-Lite entry %T", e)
		}
	}
	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
