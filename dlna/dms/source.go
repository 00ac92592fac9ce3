package dms

import (
	"context"
	"strings"

	"github.com/anacrolix/mediabrowse/mediasource"
)

// Source is the dlna_dms media source, fronting every server in a Registry.
type Source struct {
	Registry *Registry
}

var _ mediasource.MediaSource = (*Source)(nil)

func NewSource(registry *Registry) *Source {
	return &Source{Registry: registry}
}

func (me *Source) Domain() string {
	return Domain
}

func (me *Source) Name() string {
	return DefaultName
}

// Browse lists the servers when the identifier doesn't name one and there isn't exactly one of them.
func (me *Source) Browse(ctx context.Context, item mediasource.Item) (*mediasource.BrowseMedia, error) {
	if item.Identifier == "" {
		sources := me.Registry.Sources()
		if len(sources) == 1 {
			return sources[0].Browse(ctx, "")
		}
		return me.listing(sources), nil
	}
	sourceID, media, _ := strings.Cut(item.Identifier, "/")
	src, ok := me.Registry.Source(sourceID)
	if !ok {
		return nil, mediasource.BrowseErrorf("Unknown source ID: %s", sourceID)
	}
	return src.Browse(ctx, media)
}

func (me *Source) Resolve(ctx context.Context, item mediasource.Item) (*mediasource.PlayMedia, error) {
	if item.Identifier == "" {
		return nil, mediasource.Unresolvablef("Invalid identifier")
	}
	sourceID, media, ok := strings.Cut(item.Identifier, "/")
	if !ok || media == "" {
		return nil, mediasource.Unresolvablef("Missing media identifier in %s", item.Identifier)
	}
	src, found := me.Registry.Source(sourceID)
	if !found {
		return nil, mediasource.Unresolvablef("Unknown source ID: %s", sourceID)
	}
	return src.Resolve(ctx, media)
}

func (me *Source) listing(sources []*DeviceSource) *mediasource.BrowseMedia {
	ret := &mediasource.BrowseMedia{
		Domain:             Domain,
		Title:              DefaultName,
		MediaClass:         mediasource.ClassDirectory,
		ContentType:        mediasource.TypeChannels,
		ChildrenMediaClass: mediasource.ClassChannel,
		CanExpand:          true,
		Children:           []*mediasource.BrowseMedia{},
	}
	for _, src := range sources {
		ret.Children = append(ret.Children, &mediasource.BrowseMedia{
			Domain:      Domain,
			Identifier:  mediasource.FormatBackendIdentifier(src.SourceID(), mediasource.ActionObject, RootObjectID),
			Title:       src.Name(),
			MediaClass:  mediasource.ClassChannel,
			ContentType: mediasource.TypeChannel,
			CanExpand:   true,
			Thumbnail:   src.IconURL(),
		})
	}
	return ret
}
