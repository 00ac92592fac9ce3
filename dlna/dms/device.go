package dms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"

	"github.com/anacrolix/mediabrowse/mediasource"
	"github.com/anacrolix/mediabrowse/metrics"
	"github.com/anacrolix/mediabrowse/ssdp"
	"github.com/anacrolix/mediabrowse/upnp"
	"github.com/anacrolix/mediabrowse/upnpav"
)

// Device is a connected media server's ContentDirectory.
type Device interface {
	Available() bool
	Name() string
	IconURL() string
	AbsoluteURL(ref string) string
	Update(ctx context.Context) error
	SortCapabilities() []string
	BrowseMetadata(ctx context.Context, objectID string, filter []string) (upnpav.Entry, error)
	BrowseDirectChildren(ctx context.Context, objectID string, filter, sortCriteria []string) (upnpav.BrowseResult, error)
	Search(ctx context.Context, containerID, criteria string, filter []string, requestedCount int) (upnpav.BrowseResult, error)
}

type DeviceFactory interface {
	CreateDevice(ctx context.Context, location string) (Device, error)
}

type DeviceFactoryFunc func(ctx context.Context, location string) (Device, error)

func (me DeviceFactoryFunc) CreateDevice(ctx context.Context, location string) (Device, error) {
	return me(ctx, location)
}

// NewDeviceFactory creates devices by fetching their description over HTTP. Every request to a device
// is bounded by timeout, or upnp.DefaultTimeout if it's zero.
func NewDeviceFactory(timeout time.Duration, logger log.Logger) DeviceFactory {
	f := upnp.NewFactory(logger)
	if timeout > 0 {
		f.Timeout = timeout
	}
	return DeviceFactoryFunc(func(ctx context.Context, location string) (Device, error) {
		dev, err := f.CreateDevice(ctx, location)
		if err != nil {
			return nil, err
		}
		cd, err := upnpav.NewContentDirectory(dev, logger)
		if err != nil {
			return nil, err
		}
		return cd, nil
	})
}

// Discovery delivers SSDP announcements.
type Discovery interface {
	RegisterCallback(cb ssdp.Callback, filter ssdp.Filter) (unregister func())
}

// DeviceSource is one configured media server. It connects lazily, and follows the server's SSDP
// announcements to reconnect after reboots.
type DeviceSource struct {
	USN string

	factory DeviceFactory
	logger  log.Logger

	mu           sync.Mutex
	location     string
	sourceID     string
	name         string
	device       Device
	sortCriteria g.Option[[]string]

	// Serializes connect and disconnect.
	connMu sync.Mutex

	// Serializes SSDP handling.
	ssdpMu        sync.Mutex
	bootID        g.Option[int]
	connectFailed bool
}

func NewDeviceSource(factory DeviceFactory, sourceID, name, location, usn string, logger log.Logger) *DeviceSource {
	return &DeviceSource{
		USN:      usn,
		factory:  factory,
		logger:   logger,
		location: location,
		sourceID: sourceID,
		name:     name,
	}
}

func (me *DeviceSource) SourceID() string {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.sourceID
}

func (me *DeviceSource) Name() string {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.name
}

func (me *DeviceSource) Location() string {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.location
}

// The source ID changes on rename, so the logger is named per use.
func (me *DeviceSource) log() log.Logger {
	return me.logger.WithNames("dms", me.SourceID())
}

func (me *DeviceSource) UDN() string {
	return upnp.UDNFromUSN(me.USN)
}

func (me *DeviceSource) setNameAndID(name, sourceID string) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.name = name
	me.sourceID = sourceID
}

func (me *DeviceSource) currentDevice() Device {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.device
}

func (me *DeviceSource) Connected() bool {
	return me.currentDevice() != nil
}

// Available is true if connected and the server has not stopped answering.
func (me *DeviceSource) Available() bool {
	dev := me.currentDevice()
	return dev != nil && dev.Available()
}

// IconURL is that of the connected server, if any.
func (me *DeviceSource) IconURL() string {
	dev := me.currentDevice()
	if dev == nil {
		return ""
	}
	return dev.IconURL()
}

// Connect creates the device from its last known location. It does nothing if already connected to a
// device that is still answering.
func (me *DeviceSource) Connect(ctx context.Context) error {
	me.connMu.Lock()
	defer me.connMu.Unlock()
	if dev := me.currentDevice(); dev != nil {
		if dev.Available() {
			me.log().Levelf(log.Debug, "already connected")
			return nil
		}
		me.drop(dev)
	}
	location := me.Location()
	if location == "" {
		me.log().Levelf(log.Debug, "not connecting because location is not known")
		return nil
	}
	dev, err := me.factory.CreateDevice(ctx, location)
	if err == nil {
		err = dev.Update(ctx)
	}
	metrics.ObserveDLNAConnect(err)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", location, err)
	}
	me.mu.Lock()
	me.device = dev
	me.sortCriteria = g.None[[]string]()
	me.mu.Unlock()
	me.log().Levelf(log.Info, "connected to %q at %s", dev.Name(), location)
	return nil
}

func (me *DeviceSource) Disconnect() {
	me.connMu.Lock()
	defer me.connMu.Unlock()
	dev := me.currentDevice()
	if dev == nil {
		me.log().Levelf(log.Debug, "not connected")
		return
	}
	me.drop(dev)
}

// disconnectFrom disconnects only if dev is still the connected device.
func (me *DeviceSource) disconnectFrom(dev Device) {
	me.connMu.Lock()
	defer me.connMu.Unlock()
	if me.currentDevice() == dev {
		me.drop(dev)
	}
}

// Requires connMu.
func (me *DeviceSource) drop(dev Device) {
	me.mu.Lock()
	me.device = nil
	me.sortCriteria = g.None[[]string]()
	me.mu.Unlock()
	metrics.IncDLNADisconnect()
	me.log().Levelf(log.Info, "disconnected from %q", dev.Name())
}

// HandleSSDP follows a server's announcements: reboots and byebyes drop the connection, and an alive
// reconnects unless the last attempt since then already failed.
func (me *DeviceSource) HandleSSDP(ctx context.Context, info ssdp.ServiceInfo, change ssdp.Change) {
	me.ssdpMu.Lock()
	defer me.ssdpMu.Unlock()
	bootID := info.BootID()

	if change == ssdp.ChangeUpdate {
		if bootID.Ok && me.bootID.Ok && bootID.Value == me.bootID.Value {
			if next := info.NextBootID(); next.Ok {
				me.bootID = next
			}
		}
		return
	}

	if bootID.Ok {
		if me.bootID.Ok && me.bootID.Value != bootID.Value {
			me.log().Levelf(log.Debug, "boot id changed from %v to %v", me.bootID.Value, bootID.Value)
			me.connectFailed = false
			if me.Connected() {
				me.Disconnect()
			}
		}
		me.bootID = bootID
	}

	if change == ssdp.ChangeByeBye {
		if me.Connected() {
			me.Disconnect()
		}
		me.connectFailed = false
		return
	}

	// A connection to a device that stopped answering is replaced.
	if me.Available() || me.connectFailed {
		return
	}
	if info.Location != "" {
		me.mu.Lock()
		me.location = info.Location
		me.mu.Unlock()
	}
	if err := me.Connect(ctx); err != nil {
		me.connectFailed = true
		me.log().Levelf(log.Warning, "failed connecting to recently alive device at %s: %v", me.Location(), err)
	}
}

// request runs op against the connected device, translating failures into browse and resolve errors. A
// device that stops answering is disconnected.
func request[T any](ctx context.Context, me *DeviceSource, param string, op func(Device) (T, error)) (ret T, err error) {
	dev := me.currentDevice()
	if dev != nil && !dev.Available() {
		me.disconnectFrom(dev)
		dev = nil
	}
	if dev == nil {
		err = connectionErrorf(nil, "DMS is not connected")
		return
	}
	ret, err = op(dev)
	if err != nil && !dev.Available() {
		me.disconnectFrom(dev)
	}
	if err == nil {
		return
	}
	if mediasource.IsBrowseError(err) || mediasource.IsUnresolvable(err) {
		return
	}
	var ae *upnp.ActionError
	if errors.As(err, &ae) {
		switch ae.Code {
		case upnpav.NoSuchObjectErrorCode:
			err = actionErrorf(err, "No such object: %s", param)
		case upnpav.InvalidSearchCriteriaErrorCode:
			err = actionErrorf(err, "Invalid query: %s", param)
		default:
			err = connectionErrorf(err, "Server failure: %v", err)
		}
		return
	}
	var ce *upnp.ConnectionError
	if errors.As(err, &ce) && ctx.Err() == nil {
		me.disconnectFrom(dev)
		err = connectionErrorf(err, "Server disconnected: %v", err)
		return
	}
	err = connectionErrorf(err, "Server communication failure: %v", err)
	return
}
