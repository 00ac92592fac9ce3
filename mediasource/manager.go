package mediasource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anacrolix/log"

	"github.com/anacrolix/mediabrowse/metrics"
)

// MediaSource is a backend for one domain.
type MediaSource interface {
	Domain() string
	// Display name used when listing all sources.
	Name() string
	Browse(ctx context.Context, item Item) (*BrowseMedia, error)
	Resolve(ctx context.Context, item Item) (*PlayMedia, error)
}

const RootTitle = "Media Sources"

// Manager routes media-source URIs to the MediaSource registered for their domain.
type Manager struct {
	Logger log.Logger

	mu      sync.RWMutex
	sources map[string]MediaSource
	order   []string
}

func NewManager(logger log.Logger) *Manager {
	return &Manager{
		Logger:  logger.WithNames("mediasource"),
		sources: make(map[string]MediaSource),
	}
}

func (me *Manager) Register(src MediaSource) error {
	domain := src.Domain()
	if !ValidDomain(domain) {
		return fmt.Errorf("invalid media source domain %q", domain)
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	if _, ok := me.sources[domain]; ok {
		return fmt.Errorf("media source %q already registered", domain)
	}
	me.sources[domain] = src
	me.order = append(me.order, domain)
	me.Logger.Levelf(log.Debug, "registered media source %q", domain)
	return nil
}

func (me *Manager) Unregister(domain string) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	if _, ok := me.sources[domain]; !ok {
		return false
	}
	delete(me.sources, domain)
	for i, d := range me.order {
		if d == domain {
			me.order = append(me.order[:i], me.order[i+1:]...)
			break
		}
	}
	return true
}

// Sources returns the registered sources in registration order.
func (me *Manager) Sources() (ret []MediaSource) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	for _, d := range me.order {
		ret = append(ret, me.sources[d])
	}
	return
}

func (me *Manager) Source(domain string) (MediaSource, bool) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	src, ok := me.sources[domain]
	return src, ok
}

func (me *Manager) item(uri string, fault Fault) (item Item, src MediaSource, err error) {
	if uri == "" {
		return
	}
	item, ok := ParseItem(uri)
	if !ok {
		err = Errorf(fault, nil, "Invalid media source URI")
		return
	}
	if item.Domain == "" {
		return
	}
	src, ok = me.Source(item.Domain)
	if !ok {
		err = Errorf(fault, nil, "Unknown media source")
	}
	return
}

// Browse expands the node addressed by uri. An empty uri lists all sources. The filter, if any, is applied
// to the direct children of the result.
func (me *Manager) Browse(ctx context.Context, uri string, filter ContentFilter) (ret *BrowseMedia, err error) {
	item, src, err := me.item(uri, FaultBrowse)
	defer func() {
		metrics.ObserveBrowse(item.Domain, err)
	}()
	if err != nil {
		return
	}
	if src == nil {
		ret = me.root()
	} else {
		ret, err = src.Browse(ctx, item)
		if err != nil {
			err = asFault(FaultBrowse, err)
			me.Logger.Levelf(log.Debug, "browsing %v: %v", item, err)
			return nil, err
		}
	}
	return filter.Apply(ret), nil
}

// Resolve turns uri into a playable URL.
func (me *Manager) Resolve(ctx context.Context, uri string) (ret *PlayMedia, err error) {
	item, src, err := me.item(uri, FaultResolve)
	defer func() {
		metrics.ObserveResolve(item.Domain, err)
	}()
	if err != nil {
		return
	}
	if src == nil {
		err = Unresolvablef("No media source specified")
		return
	}
	ret, err = src.Resolve(ctx, item)
	if err != nil {
		err = asFault(FaultResolve, err)
		me.Logger.Levelf(log.Debug, "resolving %v: %v", item, err)
		return nil, err
	}
	return
}

func (me *Manager) root() *BrowseMedia {
	ret := &BrowseMedia{
		Title:              RootTitle,
		MediaClass:         ClassApp,
		ContentType:        TypeApps,
		ChildrenMediaClass: ClassApp,
		CanExpand:          true,
		Children:           []*BrowseMedia{},
	}
	for _, src := range me.Sources() {
		ret.Children = append(ret.Children, &BrowseMedia{
			Domain:      src.Domain(),
			Title:       src.Name(),
			MediaClass:  ClassApp,
			ContentType: TypeApp,
			CanExpand:   true,
		})
	}
	return ret
}

// Errors from backends that are not already of the fault's kind are wrapped so callers only need to
// check one sentinel.
func asFault(fault Fault, err error) error {
	if errors.Is(err, fault.sentinel()) {
		return err
	}
	return Errorf(fault, err, "%s", err)
}
