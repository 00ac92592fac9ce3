package dms

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/mediabrowse/upnp"
	"github.com/anacrolix/mediabrowse/upnpav"
)

type searchCall struct {
	Container string
	Criteria  string
	Count     int
}

// fakeDevice serves a tree of objects. Errors set for an action are returned instead of results.
type fakeDevice struct {
	mu        sync.Mutex
	available bool
	name      string
	sortCaps  []string
	objects   map[string]*upnpav.Object
	// Children by parent ID, in order.
	children map[string][]string

	browseErr    error
	childrenErr  error
	searchErr    error
	searchResult *upnpav.BrowseResult

	browseCalls   int
	childrenCalls int
	lastSort      []string
	searches      []searchCall
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		available: true,
		name:      "Fake Server",
		sortCaps:  []string{"*"},
		objects: map[string]*upnpav.Object{
			"0": {ID: "0", ParentID: "-1", Title: "root", Class: "object.container"},
		},
		children: make(map[string][]string),
	}
}

func (me *fakeDevice) add(parentID string, obj *upnpav.Object) *upnpav.Object {
	obj.ParentID = parentID
	me.objects[obj.ID] = obj
	me.children[parentID] = append(me.children[parentID], obj.ID)
	return obj
}

func (me *fakeDevice) Available() bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.available
}

func (me *fakeDevice) Name() string    { return me.name }
func (me *fakeDevice) IconURL() string { return "http://fake/icon.png" }

func (me *fakeDevice) AbsoluteURL(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	return "http://fake/" + strings.TrimPrefix(ref, "/")
}

func (me *fakeDevice) Update(ctx context.Context) error { return nil }

func (me *fakeDevice) SortCapabilities() []string { return me.sortCaps }

// Transport failures make the profile report unavailable, as the real one does, unless the caller gave up.
func (me *fakeDevice) fail(ctx context.Context, err error) error {
	var ce *upnp.ConnectionError
	if errors.As(err, &ce) && ctx.Err() == nil {
		me.available = false
	}
	return err
}

func (me *fakeDevice) BrowseMetadata(ctx context.Context, objectID string, filter []string) (upnpav.Entry, error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.browseCalls++
	if me.browseErr != nil {
		return nil, me.fail(ctx, me.browseErr)
	}
	obj, ok := me.objects[objectID]
	if !ok {
		return nil, &upnp.ActionError{Action: "Browse", Code: upnpav.NoSuchObjectErrorCode, Description: "No such object"}
	}
	return obj, nil
}

func (me *fakeDevice) BrowseDirectChildren(ctx context.Context, objectID string, filter, sortCriteria []string) (ret upnpav.BrowseResult, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.childrenCalls++
	me.lastSort = sortCriteria
	if me.childrenErr != nil {
		return ret, me.fail(ctx, me.childrenErr)
	}
	if _, ok := me.objects[objectID]; !ok {
		return ret, &upnp.ActionError{Action: "Browse", Code: upnpav.NoSuchObjectErrorCode, Description: "No such object"}
	}
	for _, id := range me.children[objectID] {
		ret.Entries = append(ret.Entries, me.objects[id])
	}
	ret.NumberReturned = len(ret.Entries)
	ret.TotalMatches = len(ret.Entries)
	return
}

func (me *fakeDevice) Search(ctx context.Context, containerID, criteria string, filter []string, requestedCount int) (ret upnpav.BrowseResult, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.searches = append(me.searches, searchCall{containerID, criteria, requestedCount})
	if me.searchErr != nil {
		return ret, me.fail(ctx, me.searchErr)
	}
	if me.searchResult != nil {
		return *me.searchResult, nil
	}
	// Only understands the criteria used for path lookups.
	parentID, title, err := parseTitleCriteria(criteria)
	if err != nil {
		return ret, &upnp.ActionError{Action: "Search", Code: upnpav.InvalidSearchCriteriaErrorCode, Description: "Invalid search criteria"}
	}
	for _, id := range me.children[parentID] {
		if me.objects[id].Title == title {
			ret.Entries = append(ret.Entries, me.objects[id])
		}
	}
	ret.TotalMatches = len(ret.Entries)
	if requestedCount > 0 && len(ret.Entries) > requestedCount {
		ret.Entries = ret.Entries[:requestedCount]
	}
	ret.NumberReturned = len(ret.Entries)
	return
}

// Parses `@parentID="x" and dc:title="y"`, unescaping the literals.
func parseTitleCriteria(criteria string) (parentID, title string, err error) {
	rest, ok := strings.CutPrefix(criteria, `@parentID="`)
	if !ok {
		err = errors.New("bad criteria")
		return
	}
	parentID, rest, err = readLiteral(rest)
	if err != nil {
		return
	}
	rest, ok = strings.CutPrefix(rest, ` and dc:title="`)
	if !ok {
		err = errors.New("bad criteria")
		return
	}
	title, rest, err = readLiteral(rest)
	if err == nil && rest != "" {
		err = errors.New("trailing criteria")
	}
	return
}

func readLiteral(s string) (lit, rest string, err error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
			if i == len(s) {
				return "", "", errors.New("dangling escape")
			}
			b.WriteByte(s[i])
		case '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", "", errors.New("unterminated literal")
}

type countingFactory struct {
	creates atomic.Int32
	dev     Device
	err     error
}

func (me *countingFactory) CreateDevice(ctx context.Context, location string) (Device, error) {
	me.creates.Add(1)
	if me.err != nil {
		return nil, me.err
	}
	return me.dev, nil
}

func newConnectedSource(t *testing.T, dev *fakeDevice) *DeviceSource {
	src := NewDeviceSource(&countingFactory{dev: dev}, "front_room", "Front Room", "http://fake/desc.xml", "uuid:fake::urn:schemas-upnp-org:device:MediaServer:1", log.Default)
	require.NoError(t, src.Connect(context.Background()))
	return src
}
