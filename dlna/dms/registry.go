package dms

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/anacrolix/log"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/mediabrowse/metrics"
	"github.com/anacrolix/mediabrowse/ssdp"
)

// Entry is the configuration of one media server.
type Entry struct {
	// Stable key of the configuration, unlike the source ID which follows the name.
	ID       string
	Name     string
	Location string
	USN      string
}

type registration struct {
	source      *DeviceSource
	unsubscribe func()
}

// Registry owns the DeviceSources of the configured servers, keyed by source IDs generated from their
// names.
type Registry struct {
	factory   DeviceFactory
	discovery Discovery
	logger    log.Logger

	mu       sync.RWMutex
	entries  map[string]*registration
	bySource map[string]*DeviceSource
	order    []*DeviceSource
}

// NewRegistry returns an empty registry. discovery may be nil, in which case sources only connect when
// added.
func NewRegistry(factory DeviceFactory, discovery Discovery, logger log.Logger) *Registry {
	return &Registry{
		factory:   factory,
		discovery: discovery,
		logger:    logger,
		entries:   make(map[string]*registration),
		bySource:  make(map[string]*DeviceSource),
	}
}

func (me *Registry) add(e Entry) (*DeviceSource, error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if _, ok := me.entries[e.ID]; ok {
		return nil, fmt.Errorf("entry %q already registered", e.ID)
	}
	sourceID := GenerateSourceID(e.Name, me.bySource)
	src := NewDeviceSource(me.factory, sourceID, e.Name, e.Location, e.USN, me.logger)
	reg := &registration{source: src, unsubscribe: func() {}}
	if me.discovery != nil && e.USN != "" {
		reg.unsubscribe = me.discovery.RegisterCallback(src.HandleSSDP, ssdp.MatchUSN(e.USN))
	}
	me.entries[e.ID] = reg
	me.bySource[sourceID] = src
	me.order = append(me.order, src)
	metrics.SetDLNASources(len(me.order))
	me.logger.Levelf(log.Info, "added source %q for %q", sourceID, e.Name)
	return src, nil
}

func (me *Registry) connect(ctx context.Context, src *DeviceSource) {
	if err := src.Connect(ctx); err != nil {
		// Discovery will try again when the server announces itself.
		me.logger.Levelf(log.Debug, "initial connect of %q: %v", src.SourceID(), err)
	}
}

// Add registers a server and attempts a first connection. Failing to connect is not an error.
func (me *Registry) Add(ctx context.Context, e Entry) (*DeviceSource, error) {
	src, err := me.add(e)
	if err != nil {
		return nil, err
	}
	me.connect(ctx, src)
	return src, nil
}

// Setup registers entries in order, so that their IDs are deterministic, then connects them
// concurrently.
func (me *Registry) Setup(ctx context.Context, entries []Entry) error {
	var added []*DeviceSource
	for _, e := range entries {
		src, err := me.add(e)
		if err != nil {
			return err
		}
		added = append(added, src)
	}
	var eg errgroup.Group
	eg.SetLimit(4)
	for _, src := range added {
		src := src
		eg.Go(func() error {
			me.connect(ctx, src)
			return nil
		})
	}
	return eg.Wait()
}

// Rename gives an entry's source a new name, and an ID generated from it. Returns the new source ID.
func (me *Registry) Rename(entryID, name string) (string, error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	reg, ok := me.entries[entryID]
	if !ok {
		return "", fmt.Errorf("no entry %q", entryID)
	}
	src := reg.source
	delete(me.bySource, src.SourceID())
	sourceID := GenerateSourceID(name, me.bySource)
	src.setNameAndID(name, sourceID)
	me.bySource[sourceID] = src
	me.order = slices.DeleteFunc(me.order, func(s *DeviceSource) bool { return s == src })
	me.order = append(me.order, src)
	return sourceID, nil
}

// Remove unregisters an entry and disconnects its source.
func (me *Registry) Remove(entryID string) bool {
	me.mu.Lock()
	reg, ok := me.entries[entryID]
	if ok {
		delete(me.entries, entryID)
		delete(me.bySource, reg.source.SourceID())
		me.order = slices.DeleteFunc(me.order, func(s *DeviceSource) bool { return s == reg.source })
		metrics.SetDLNASources(len(me.order))
	}
	me.mu.Unlock()
	if !ok {
		return false
	}
	reg.unsubscribe()
	reg.source.Disconnect()
	return true
}

// Close removes all entries.
func (me *Registry) Close() {
	me.mu.RLock()
	ids := make([]string, 0, len(me.entries))
	for id := range me.entries {
		ids = append(ids, id)
	}
	me.mu.RUnlock()
	for _, id := range ids {
		me.Remove(id)
	}
}

func (me *Registry) Source(sourceID string) (*DeviceSource, bool) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	src, ok := me.bySource[sourceID]
	return src, ok
}

// Sources returns the sources in the order they were added or last renamed.
func (me *Registry) Sources() []*DeviceSource {
	me.mu.RLock()
	defer me.mu.RUnlock()
	return slices.Clone(me.order)
}
