package dms

import (
	"context"
	"fmt"
	"slices"
	"strings"

	g "github.com/anacrolix/generics"

	"github.com/anacrolix/mediabrowse/dlna"
	"github.com/anacrolix/mediabrowse/mediasource"
	"github.com/anacrolix/mediabrowse/upnp"
	"github.com/anacrolix/mediabrowse/upnpav"
)

// Browse lists the object, path or search named by identifier, the part after the source ID.
func (me *DeviceSource) Browse(ctx context.Context, identifier string) (*mediasource.BrowseMedia, error) {
	action, payload := mediasource.ParseAction(identifier)
	switch action {
	case mediasource.ActionNone:
		return me.BrowseObject(ctx, RootObjectID)
	case mediasource.ActionObject:
		return me.BrowseObject(ctx, payload)
	case mediasource.ActionPath:
		objectID, err := me.ResolvePath(ctx, payload)
		if err != nil {
			return nil, err
		}
		return me.BrowseObject(ctx, objectID)
	case mediasource.ActionSearch:
		return me.BrowseSearch(ctx, payload)
	}
	return nil, mediasource.BrowseErrorf("Invalid identifier %s", identifier)
}

// Resolve returns playable media for identifier, the part after the source ID.
func (me *DeviceSource) Resolve(ctx context.Context, identifier string) (*mediasource.PlayMedia, error) {
	action, payload := mediasource.ParseAction(identifier)
	switch action {
	case mediasource.ActionObject:
		return me.ResolveObject(ctx, payload)
	case mediasource.ActionPath:
		objectID, err := me.ResolvePath(ctx, payload)
		if err != nil {
			return nil, err
		}
		return me.ResolveObject(ctx, objectID)
	case mediasource.ActionSearch:
		return me.ResolveSearch(ctx, payload)
	}
	return nil, mediasource.Unresolvablef("Invalid identifier %s", identifier)
}

// ResolveObject returns the first streamable resource of an object.
func (me *DeviceSource) ResolveObject(ctx context.Context, objectID string) (*mediasource.PlayMedia, error) {
	return request(ctx, me, objectID, func(dev Device) (*mediasource.PlayMedia, error) {
		entry, err := dev.BrowseMetadata(ctx, objectID, ResolveFilter)
		if err != nil {
			return nil, err
		}
		return playMedia(dev, entry)
	})
}

// ResolveSearch returns the first streamable resource of the first search result.
func (me *DeviceSource) ResolveSearch(ctx context.Context, query string) (*mediasource.PlayMedia, error) {
	return request(ctx, me, query, func(dev Device) (*mediasource.PlayMedia, error) {
		res, err := dev.Search(ctx, RootObjectID, query, ResolveFilter, 1)
		if err != nil {
			return nil, err
		}
		if len(res.Entries) == 0 {
			return nil, mediasource.Unresolvablef("Nothing found for %s", query)
		}
		return playMedia(dev, res.Entries[0])
	})
}

func playMedia(dev Device, entry upnpav.Entry) (*mediasource.PlayMedia, error) {
	obj, ok := entry.(*upnpav.Object)
	if !ok {
		return nil, mediasource.Unresolvablef("%v is not a DIDL object", entry)
	}
	if len(obj.Res) == 0 {
		return nil, mediasource.Unresolvablef("Object has no resources")
	}
	for _, res := range obj.Res {
		if res.URL == "" || !dlna.IsStreamable(res.ProtocolInfo) {
			continue
		}
		return &mediasource.PlayMedia{
			URL:      dev.AbsoluteURL(strings.TrimSpace(res.URL)),
			MimeType: dlna.MimeType(res.ProtocolInfo),
			Metadata: obj,
		}, nil
	}
	return nil, mediasource.Unresolvablef("Object has no playable resources")
}

// ResolvePath finds the object at a slash separated path of titles below the root. Each step searches
// for the title, and falls back to listing the children when the server can't search.
func (me *DeviceSource) ResolvePath(ctx context.Context, path string) (string, error) {
	return request(ctx, me, path, func(dev Device) (string, error) {
		objectID := RootObjectID
		for _, node := range strings.Split(path, "/") {
			if node == "" {
				continue
			}
			next, err := resolvePathNode(ctx, dev, objectID, node, path)
			if err != nil {
				return "", err
			}
			objectID = next
		}
		return objectID, nil
	})
}

func resolvePathNode(ctx context.Context, dev Device, parentID, node, path string) (string, error) {
	criteria := fmt.Sprintf(`@parentID="%s" and dc:title="%s"`,
		mediasource.EscapeSearchLiteral(parentID), mediasource.EscapeSearchLiteral(node))
	res, err := dev.Search(ctx, parentID, criteria, PathFilter, 1)
	switch {
	case upnp.IsActionError(err, upnpav.NoSuchContainerErrorCode):
		return "", mediasource.Errorf(mediasource.FaultResolve, err, "No such container: %s", parentID)
	case upnp.IsActionError(err):
		// Searching is optional for servers.
	case err != nil:
		return "", err
	default:
		if res.TotalMatches > 1 || len(res.Entries) > 1 {
			return "", mediasource.Unresolvablef("Too many items found for %s in %s", node, path)
		}
		if len(res.Entries) == 1 {
			return res.Entries[0].EntryID(), nil
		}
	}
	res, err = dev.BrowseDirectChildren(ctx, parentID, PathFilter, nil)
	if err != nil {
		return "", err
	}
	objs := res.Objects()
	if res.TotalMatches == 0 || len(objs) == 0 {
		return "", mediasource.Unresolvablef("No contents for %s in %s", node, path)
	}
	for _, obj := range objs {
		if strings.EqualFold(obj.Title, node) {
			return obj.ID, nil
		}
	}
	return "", mediasource.Unresolvablef("Nothing found for %s in %s", node, path)
}

// BrowseObject returns the object with its children.
func (me *DeviceSource) BrowseObject(ctx context.Context, objectID string) (*mediasource.BrowseMedia, error) {
	return request(ctx, me, objectID, func(dev Device) (*mediasource.BrowseMedia, error) {
		entry, err := dev.BrowseMetadata(ctx, objectID, BrowseFilter)
		if err != nil {
			return nil, err
		}
		base, ok := entry.(*upnpav.Object)
		if !ok {
			return nil, mediasource.BrowseErrorf("%v is not a DIDL object", entry)
		}
		res, err := dev.BrowseDirectChildren(ctx, objectID, BrowseFilter, me.sortCriteriaFor(dev))
		if err != nil && (base.IsContainer() || !upnp.IsActionError(err)) {
			return nil, err
		}
		children := res.Objects()
		if children == nil {
			children = []*upnpav.Object{}
		}
		ret := me.objectToNode(dev, base, children)
		ret.CalculateChildrenClass()
		return ret, nil
	})
}

// BrowseSearch returns every object matching query as the children of a search results node.
func (me *DeviceSource) BrowseSearch(ctx context.Context, query string) (*mediasource.BrowseMedia, error) {
	return request(ctx, me, query, func(dev Device) (*mediasource.BrowseMedia, error) {
		res, err := dev.Search(ctx, RootObjectID, query, BrowseFilter, 0)
		if err != nil {
			return nil, err
		}
		ret := &mediasource.BrowseMedia{
			Domain:     Domain,
			Identifier: mediasource.FormatBackendIdentifier(me.SourceID(), mediasource.ActionSearch, query),
			Title:      "Search results",
			MediaClass: mediasource.ClassDirectory,
			CanExpand:  true,
			Children:   []*mediasource.BrowseMedia{},
		}
		for _, obj := range res.Objects() {
			ret.Children = append(ret.Children, me.objectToNode(dev, obj, nil))
		}
		ret.CalculateChildrenClass()
		return ret, nil
	})
}

// objectToNode converts obj. Children are only set if known, which makes the node expanded.
func (me *DeviceSource) objectToNode(dev Device, obj *upnpav.Object, children []*upnpav.Object) *mediasource.BrowseMedia {
	title := obj.Title
	if obj.ID == RootObjectID {
		title = me.Name()
	}
	ret := &mediasource.BrowseMedia{
		Domain:      Domain,
		Identifier:  mediasource.FormatBackendIdentifier(me.SourceID(), mediasource.ActionObject, obj.ID),
		Title:       title,
		MediaClass:  MediaClass(obj.Class),
		ContentType: contentType(obj),
		CanPlay:     canPlay(obj),
		CanExpand:   len(children) != 0 || obj.ChildCount > 0 || obj.IsContainer(),
		Thumbnail:   thumbnail(dev, obj),
	}
	if children != nil {
		ret.Children = make([]*mediasource.BrowseMedia, 0, len(children))
		for _, c := range children {
			ret.Children = append(ret.Children, me.objectToNode(dev, c, nil))
		}
	}
	return ret
}

func contentType(obj *upnpav.Object) string {
	if len(obj.Res) != 0 {
		if mt := dlna.MimeType(obj.Res[0].ProtocolInfo); mt != "" {
			return mt
		}
	}
	return obj.Class
}

func canPlay(obj *upnpav.Object) bool {
	for _, res := range obj.Res {
		if dlna.IsStreamable(res.ProtocolInfo) {
			return true
		}
	}
	return false
}

func thumbnail(dev Device, obj *upnpav.Object) string {
	if obj.AlbumArtURI != "" {
		return dev.AbsoluteURL(strings.TrimSpace(obj.AlbumArtURI))
	}
	for _, res := range obj.Res {
		if res.ProtocolInfo == "" || res.URL == "" {
			continue
		}
		if strings.HasPrefix(res.ProtocolInfo, "http-get:*:image/") {
			return dev.AbsoluteURL(strings.TrimSpace(res.URL))
		}
	}
	return ""
}

// Sort criteria for children, computed once per connection.
func (me *DeviceSource) sortCriteriaFor(dev Device) []string {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.sortCriteria.Ok && me.device == dev {
		return me.sortCriteria.Value
	}
	caps := dev.SortCapabilities()
	var ret []string
	if slices.Contains(caps, "*") {
		ret = DefaultSortCriteria
	} else {
		for _, c := range DefaultSortCriteria {
			if slices.Contains(caps, c[1:]) {
				ret = append(ret, c)
			}
		}
	}
	if me.device == dev {
		me.sortCriteria = g.Some(ret)
	}
	return ret
}
