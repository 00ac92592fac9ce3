package upnpav

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/anacrolix/log"

	"github.com/anacrolix/mediabrowse/soap"
	"github.com/anacrolix/mediabrowse/upnp"
)

var ContentDirectoryURN = upnp.ServiceURN{Type: "ContentDirectory", Version: 1}

const (
	browseMetadata       = "BrowseMetadata"
	browseDirectChildren = "BrowseDirectChildren"
)

type BrowseResult struct {
	Entries        []Entry
	NumberReturned int
	TotalMatches   int
	UpdateID       int
}

// Objects returns the entries that are objects, skipping descriptors.
func (me BrowseResult) Objects() (ret []*Object) {
	for _, e := range me.Entries {
		if o, ok := e.(*Object); ok {
			ret = append(ret, o)
		}
	}
	return
}

// ContentDirectory is a client for the ContentDirectory service of a media server.
type ContentDirectory struct {
	Device *upnp.RemoteDevice

	service *upnp.Service
	logger  log.Logger

	mu         sync.Mutex
	available  bool
	sortCaps   []string
	searchCaps []string
}

func NewContentDirectory(dev *upnp.RemoteDevice, logger log.Logger) (*ContentDirectory, error) {
	svc, ok := dev.FindService(ContentDirectoryURN)
	if !ok {
		return nil, fmt.Errorf("device %q has no %v service", dev.Name(), ContentDirectoryURN)
	}
	return &ContentDirectory{
		Device:    dev,
		service:   svc,
		logger:    logger,
		available: true,
	}, nil
}

// Available is false once the device stopped answering at the transport level, including by exceeding
// the device timeout.
func (me *ContentDirectory) Available() bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.available
}

func (me *ContentDirectory) Name() string {
	return me.Device.Name()
}

func (me *ContentDirectory) IconURL() string {
	return me.Device.IconURL()
}

func (me *ContentDirectory) AbsoluteURL(ref string) string {
	return me.Device.AbsoluteURL(ref)
}

func (me *ContentDirectory) SortCapabilities() []string {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.sortCaps
}

func (me *ContentDirectory) SearchCapabilities() []string {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.searchCaps
}

// Update polls the capability state variables. Servers that can't report search capabilities are taken
// to have none.
func (me *ContentDirectory) Update(ctx context.Context) error {
	out, err := me.call(ctx, "GetSortCapabilities")
	if err != nil {
		return err
	}
	sortCaps := splitCSV(out["SortCaps"])
	var searchCaps []string
	out, err = me.call(ctx, "GetSearchCapabilities")
	switch {
	case err == nil:
		searchCaps = splitCSV(out["SearchCaps"])
	case upnp.IsActionError(err):
		me.logger.Levelf(log.Debug, "getting search capabilities: %v", err)
	default:
		return err
	}
	me.mu.Lock()
	me.sortCaps = sortCaps
	me.searchCaps = searchCaps
	me.mu.Unlock()
	return nil
}

// BrowseMetadata returns the entry for a single object.
func (me *ContentDirectory) BrowseMetadata(ctx context.Context, objectID string, filter []string) (Entry, error) {
	res, err := me.browse(ctx, objectID, browseMetadata, filter, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("no metadata returned for object %q", objectID)
	}
	return res.Entries[0], nil
}

// BrowseDirectChildren returns all the children of an object, fetching further pages if the server
// limits how many it returns at once.
func (me *ContentDirectory) BrowseDirectChildren(ctx context.Context, objectID string, filter, sortCriteria []string) (BrowseResult, error) {
	return me.all(func(start int) (BrowseResult, error) {
		return me.browse(ctx, objectID, browseDirectChildren, filter, sortCriteria, start, 0)
	}, 0)
}

// Search finds objects below containerID matching criteria. A requestedCount of zero asks for all of
// them.
func (me *ContentDirectory) Search(ctx context.Context, containerID, criteria string, filter []string, requestedCount int) (BrowseResult, error) {
	return me.all(func(start int) (BrowseResult, error) {
		out, err := me.call(ctx, "Search",
			soap.NewArg("ContainerID", containerID),
			soap.NewArg("SearchCriteria", criteria),
			soap.NewArg("Filter", strings.Join(filter, ",")),
			soap.NewArg("StartingIndex", strconv.Itoa(start)),
			soap.NewArg("RequestedCount", strconv.Itoa(requestedCount)),
			soap.NewArg("SortCriteria", ""),
		)
		if err != nil {
			return BrowseResult{}, err
		}
		return parseBrowseResult(out)
	}, requestedCount)
}

func (me *ContentDirectory) all(page func(start int) (BrowseResult, error), requestedCount int) (ret BrowseResult, err error) {
	ret, err = page(0)
	if err != nil || requestedCount != 0 {
		return
	}
	for ret.NumberReturned > 0 && len(ret.Entries) < ret.TotalMatches {
		var next BrowseResult
		next, err = page(len(ret.Entries))
		if err != nil {
			return
		}
		if next.NumberReturned == 0 || len(next.Entries) == 0 {
			break
		}
		ret.Entries = append(ret.Entries, next.Entries...)
		ret.NumberReturned += next.NumberReturned
	}
	return
}

func (me *ContentDirectory) browse(ctx context.Context, objectID, flag string, filter, sortCriteria []string, start, count int) (BrowseResult, error) {
	out, err := me.call(ctx, "Browse",
		soap.NewArg("ObjectID", objectID),
		soap.NewArg("BrowseFlag", flag),
		soap.NewArg("Filter", strings.Join(filter, ",")),
		soap.NewArg("StartingIndex", strconv.Itoa(start)),
		soap.NewArg("RequestedCount", strconv.Itoa(count)),
		soap.NewArg("SortCriteria", strings.Join(sortCriteria, ",")),
	)
	if err != nil {
		return BrowseResult{}, err
	}
	return parseBrowseResult(out)
}

func (me *ContentDirectory) call(ctx context.Context, action string, args ...soap.Arg) (map[string]string, error) {
	out, err := me.Device.Call(ctx, me.service, action, args...)
	// Failures caused by the caller giving up say nothing about the device.
	var ce *upnp.ConnectionError
	if errors.As(err, &ce) && ctx.Err() == nil {
		me.mu.Lock()
		me.available = false
		me.mu.Unlock()
	}
	return out, err
}

func parseBrowseResult(out map[string]string) (ret BrowseResult, err error) {
	ret.Entries, err = ParseDIDLLite(out["Result"])
	if err != nil {
		return
	}
	ret.NumberReturned = atoiOr(out["NumberReturned"], len(ret.Entries))
	ret.TotalMatches = atoiOr(out["TotalMatches"], ret.NumberReturned)
	ret.UpdateID = atoiOr(out["UpdateID"], 0)
	return
}

func atoiOr(s string, def int) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return i
}

func splitCSV(s string) (ret []string) {
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			ret = append(ret, f)
		}
	}
	return
}
