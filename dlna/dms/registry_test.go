package dms

import (
	"context"
	"errors"
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/mediabrowse/mediasource"
	"github.com/anacrolix/mediabrowse/ssdp"
)

func TestSlugify(t *testing.T) {
	for _, tc := range [][2]string{
		{"Front Room", "front_room"},
		{"  Café  Müller!! ", "cafe_muller"},
		{"MiniDLNA: server (1)", "minidlna_server_1"},
		{"???", "unknown"},
		{"", "unknown"},
	} {
		assert.Equal(t, tc[1], Slugify(tc[0]), tc[0])
	}
}

func TestGenerateSourceID(t *testing.T) {
	existing := map[string]bool{}
	assert.Equal(t, "front_room", GenerateSourceID("Front Room", existing))
	existing["front_room"] = true
	assert.Equal(t, "front_room_1", GenerateSourceID("Front Room", existing))
	existing["front_room_1"] = true
	assert.Equal(t, "front_room_2", GenerateSourceID("front room", existing))
	// Deterministic.
	assert.Equal(t, "front_room_2", GenerateSourceID("front room", existing))
}

type fakeDiscovery struct {
	callbacks map[string]ssdp.Callback
	filters   map[string]ssdp.Filter
	removed   int
	next      int
}

func (me *fakeDiscovery) RegisterCallback(cb ssdp.Callback, filter ssdp.Filter) func() {
	if me.callbacks == nil {
		me.callbacks = make(map[string]ssdp.Callback)
		me.filters = make(map[string]ssdp.Filter)
	}
	key := string(rune('a' + me.next))
	me.next++
	me.callbacks[key] = cb
	me.filters[key] = filter
	return func() {
		delete(me.callbacks, key)
		me.removed++
	}
}

func (me *fakeDiscovery) dispatch(info ssdp.ServiceInfo, change ssdp.Change) {
	for key, cb := range me.callbacks {
		if me.filters[key](info) {
			cb(context.Background(), info, change)
		}
	}
}

func sourceIDs(r *Registry) (ret []string) {
	for _, s := range r.Sources() {
		ret = append(ret, s.SourceID())
	}
	return
}

func TestRegistryGeneratesUniqueIDs(t *testing.T) {
	f := &countingFactory{err: errors.New("offline")}
	r := NewRegistry(f, nil, log.Default)
	ctx := context.Background()
	a, err := r.Add(ctx, Entry{ID: "a", Name: "Front Room", Location: "http://a/desc.xml"})
	require.NoError(t, err)
	assert.Equal(t, "front_room", a.SourceID())
	b, err := r.Add(ctx, Entry{ID: "b", Name: "Front Room", Location: "http://b/desc.xml"})
	require.NoError(t, err)
	assert.Equal(t, "front_room_1", b.SourceID())
	// The failed initial connections were not errors.
	assert.EqualValues(t, 2, f.creates.Load())

	_, err = r.Add(ctx, Entry{ID: "a", Name: "Other"})
	assert.Error(t, err)

	id, err := r.Rename("a", "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, "kitchen", id)
	assert.Equal(t, []string{"front_room_1", "kitchen"}, sourceIDs(r))
	_, ok := r.Source("front_room")
	assert.False(t, ok)

	// Renaming back reclaims a freed short ID, but only once it's free.
	id, err = r.Rename("b", "Front Room")
	require.NoError(t, err)
	assert.Equal(t, "front_room", id)
	id, err = r.Rename("a", "Front Room")
	require.NoError(t, err)
	assert.Equal(t, "front_room_1", id)

	assert.True(t, r.Remove("b"))
	assert.False(t, r.Remove("b"))
	assert.Equal(t, []string{"front_room_1"}, sourceIDs(r))
	id, err = r.Rename("a", "Front Room")
	require.NoError(t, err)
	assert.Equal(t, "front_room", id)
	src, ok := r.Source("front_room")
	require.True(t, ok)
	assert.Equal(t, "Front Room", src.Name())
}

func TestRegistrySetupAndDiscovery(t *testing.T) {
	f := &countingFactory{dev: newFakeDevice()}
	d := &fakeDiscovery{}
	r := NewRegistry(f, d, log.Default)
	err := r.Setup(context.Background(), []Entry{
		{ID: "1", Name: "Living Room", USN: "uuid:1::" + ssdp.MediaServerDeviceType},
		{ID: "2", Name: "Attic", Location: "http://attic/desc.xml", USN: "uuid:2::" + ssdp.MediaServerDeviceType},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"living_room", "attic"}, sourceIDs(r))
	living, _ := r.Source("living_room")
	attic, _ := r.Source("attic")
	assert.False(t, living.Connected())
	assert.True(t, attic.Connected())
	assert.Len(t, d.callbacks, 2)

	d.dispatch(ssdp.ServiceInfo{
		USN:      "uuid:1::" + ssdp.MediaServerDeviceType,
		Location: "http://living/desc.xml",
	}, ssdp.ChangeAlive)
	assert.True(t, living.Connected())
	assert.Equal(t, "http://living/desc.xml", living.Location())

	r.Close()
	assert.Empty(t, r.Sources())
	assert.Equal(t, 2, d.removed)
	assert.False(t, attic.Connected())
}

func TestSourceListing(t *testing.T) {
	f := &countingFactory{dev: musicTree()}
	r := NewRegistry(f, nil, log.Default)
	s := NewSource(r)
	ctx := context.Background()

	got, err := s.Browse(ctx, mediasource.Item{Domain: Domain})
	require.NoError(t, err)
	assert.Equal(t, DefaultName, got.Title)
	assert.NotNil(t, got.Children)
	assert.Empty(t, got.Children)

	_, err = r.Add(ctx, Entry{ID: "a", Name: "Front Room", Location: "http://a/desc.xml"})
	require.NoError(t, err)
	// A single source is browsed directly.
	got, err = s.Browse(ctx, mediasource.Item{Domain: Domain})
	require.NoError(t, err)
	assert.Equal(t, "front_room/:0", got.Identifier)
	assert.Equal(t, "Front Room", got.Title)

	_, err = r.Add(ctx, Entry{ID: "b", Name: "Den", Location: "http://b/desc.xml"})
	require.NoError(t, err)
	got, err = s.Browse(ctx, mediasource.Item{Domain: Domain})
	require.NoError(t, err)
	assert.Equal(t, mediasource.ClassDirectory, got.MediaClass)
	assert.Equal(t, mediasource.TypeChannels, got.ContentType)
	assert.Equal(t, mediasource.ClassChannel, got.ChildrenMediaClass)
	require.Len(t, got.Children, 2)
	assert.Equal(t, "front_room/:0", got.Children[0].Identifier)
	assert.Equal(t, "den/:0", got.Children[1].Identifier)
	assert.Equal(t, mediasource.ClassChannel, got.Children[1].MediaClass)
	assert.Equal(t, "http://fake/icon.png", got.Children[1].Thumbnail)

	for _, identifier := range []string{"den", "den/", "den/:0"} {
		got, err = s.Browse(ctx, mediasource.Item{Domain: Domain, Identifier: identifier})
		require.NoError(t, err, identifier)
		assert.Equal(t, "Den", got.Title, identifier)
	}
	got, err = s.Browse(ctx, mediasource.Item{Domain: Domain, Identifier: "den/Music/Jazz"})
	require.NoError(t, err)
	assert.Equal(t, "den/:3", got.Identifier)
}

func TestSourceErrors(t *testing.T) {
	r := NewRegistry(&countingFactory{dev: musicTree()}, nil, log.Default)
	s := NewSource(r)
	ctx := context.Background()
	_, err := r.Add(ctx, Entry{ID: "a", Name: "Front Room", Location: "http://a/desc.xml"})
	require.NoError(t, err)

	_, err = s.Browse(ctx, mediasource.Item{Domain: Domain, Identifier: "nope/:0"})
	assert.EqualError(t, err, "Unknown source ID: nope")
	assert.ErrorIs(t, err, mediasource.ErrBrowse)

	_, err = s.Resolve(ctx, mediasource.Item{Domain: Domain})
	assert.EqualError(t, err, "Invalid identifier")
	assert.ErrorIs(t, err, mediasource.ErrUnresolvable)
	_, err = s.Resolve(ctx, mediasource.Item{Domain: Domain, Identifier: "front_room"})
	assert.EqualError(t, err, "Missing media identifier in front_room")
	_, err = s.Resolve(ctx, mediasource.Item{Domain: Domain, Identifier: "nope/:4"})
	assert.EqualError(t, err, "Unknown source ID: nope")

	pm, err := s.Resolve(ctx, mediasource.Item{Domain: Domain, Identifier: "front_room/:4"})
	require.NoError(t, err)
	assert.Equal(t, "http://fake/media/4.mp3", pm.URL)
}

func TestManagerEndToEnd(t *testing.T) {
	r := NewRegistry(&countingFactory{dev: musicTree()}, nil, log.Default)
	m := mediasource.NewManager(log.Default)
	require.NoError(t, m.Register(NewSource(r)))
	ctx := context.Background()
	_, err := r.Add(ctx, Entry{ID: "a", Name: "Front Room", Location: "http://a/desc.xml"})
	require.NoError(t, err)

	got, err := m.Browse(ctx, "media-source://dlna_dms/front_room/:0", nil)
	require.NoError(t, err)
	require.Len(t, got.Children, 2)
	assert.True(t, got.Children[0].CanExpand)
	assert.Equal(t, "Music", got.Children[0].Title)
	assert.True(t, got.Children[1].CanPlay)
	assert.Equal(t, "audio/mpeg", got.Children[1].ContentType)

	_, err = m.Browse(ctx, "media-source://dlna_dms/front_room/Nope", nil)
	assert.ErrorIs(t, err, mediasource.ErrBrowse)
	assert.EqualError(t, err, "Nothing found for Nope in Nope")

	pm, err := m.Resolve(ctx, got.Children[1].ContentID())
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", pm.MimeType)
}
