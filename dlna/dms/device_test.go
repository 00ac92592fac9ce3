package dms

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/mediabrowse/mediasource"
	"github.com/anacrolix/mediabrowse/ssdp"
	"github.com/anacrolix/mediabrowse/upnp"
	"github.com/anacrolix/mediabrowse/upnpav"
)

const testUSN = "uuid:fake::urn:schemas-upnp-org:device:MediaServer:1"

// Factory that blocks until released, so that concurrent connects overlap.
type slowFactory struct {
	countingFactory
	release chan struct{}
}

func (me *slowFactory) CreateDevice(ctx context.Context, location string) (Device, error) {
	<-me.release
	return me.countingFactory.CreateDevice(ctx, location)
}

func TestConcurrentConnectCreatesOnce(t *testing.T) {
	f := &slowFactory{
		countingFactory: countingFactory{dev: newFakeDevice()},
		release:         make(chan struct{}),
	}
	src := NewDeviceSource(f, "x", "X", "http://fake/desc.xml", testUSN, log.Default)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, src.Connect(context.Background()))
			assert.True(t, src.Available())
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(f.release)
	wg.Wait()
	assert.EqualValues(t, 1, f.creates.Load())
}

func TestConnectWithoutLocation(t *testing.T) {
	f := &countingFactory{dev: newFakeDevice()}
	src := NewDeviceSource(f, "x", "X", "", testUSN, log.Default)
	require.NoError(t, src.Connect(context.Background()))
	assert.False(t, src.Connected())
	assert.EqualValues(t, 0, f.creates.Load())
}

func TestConnectPropagatesError(t *testing.T) {
	cerr := &upnp.ConnectionError{URL: "http://fake/desc.xml", Err: errors.New("refused")}
	src := NewDeviceSource(&countingFactory{err: cerr}, "x", "X", "http://fake/desc.xml", testUSN, log.Default)
	err := src.Connect(context.Background())
	var ce *upnp.ConnectionError
	assert.ErrorAs(t, err, &ce)
	assert.False(t, src.Available())
}

func TestNotConnectedFailsFast(t *testing.T) {
	dev := newFakeDevice()
	src := NewDeviceSource(&countingFactory{dev: dev}, "x", "X", "", testUSN, log.Default)
	ctx := context.Background()
	_, err := src.BrowseObject(ctx, "0")
	assert.ErrorIs(t, err, ErrDeviceConnection)
	assert.ErrorIs(t, err, mediasource.ErrBrowse)
	assert.ErrorIs(t, err, mediasource.ErrUnresolvable)
	assert.NotErrorIs(t, err, ErrAction)
	assert.EqualError(t, err, "DMS is not connected")
	_, err = src.ResolveObject(ctx, "0")
	assert.ErrorIs(t, err, ErrDeviceConnection)
	_, err = src.ResolvePath(ctx, "a/b")
	assert.ErrorIs(t, err, ErrDeviceConnection)
	_, err = src.BrowseSearch(ctx, "x")
	assert.ErrorIs(t, err, ErrDeviceConnection)
	assert.Zero(t, dev.browseCalls)
	assert.Empty(t, dev.searches)
}

func TestDisconnectOnConnectionError(t *testing.T) {
	dev := newFakeDevice()
	src := newConnectedSource(t, dev)
	dev.browseErr = &upnp.ConnectionError{URL: "http://fake/ctl", Err: errors.New("connection reset")}
	_, err := src.BrowseObject(context.Background(), "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceConnection)
	assert.Contains(t, err.Error(), "Server disconnected: ")
	assert.False(t, src.Available())
	assert.False(t, src.Connected())

	calls := dev.browseCalls
	_, err = src.ResolveObject(context.Background(), "0")
	assert.EqualError(t, err, "DMS is not connected")
	assert.Equal(t, calls, dev.browseCalls)
}

func TestCanceledRequestDoesNotDisconnect(t *testing.T) {
	dev := newFakeDevice()
	src := newConnectedSource(t, dev)
	dev.browseErr = &upnp.ConnectionError{URL: "http://fake/ctl", Err: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.BrowseObject(ctx, "0")
	assert.ErrorIs(t, err, ErrDeviceConnection)
	assert.Contains(t, err.Error(), "Server communication failure: ")
	assert.True(t, src.Connected())
}

func TestRequestErrorMessages(t *testing.T) {
	for _, tc := range []struct {
		err      error
		msg      string
		isAction bool
	}{
		{
			err:      &upnp.ActionError{Action: "Browse", Code: upnpav.NoSuchObjectErrorCode},
			msg:      "No such object: 123",
			isAction: true,
		},
		{
			err:      &upnp.ActionError{Action: "Browse", Code: upnpav.InvalidSearchCriteriaErrorCode},
			msg:      "Invalid query: 123",
			isAction: true,
		},
		{
			err: &upnp.ActionError{Action: "Browse", Code: upnp.ActionFailedErrorCode, Description: "Action Failed"},
			msg: "Server failure: UPnP error 501 calling Browse: Action Failed",
		},
		{
			err: &upnp.ResponseError{URL: "http://fake/ctl", StatusCode: 404, Status: http.StatusText(404)},
			msg: "Server communication failure: unexpected response from http://fake/ctl: Not Found",
		},
	} {
		dev := newFakeDevice()
		src := newConnectedSource(t, dev)
		dev.browseErr = tc.err
		_, err := src.ResolveObject(context.Background(), "123")
		assert.EqualError(t, err, tc.msg)
		assert.ErrorIs(t, err, ErrDeviceConnection)
		assert.ErrorIs(t, err, mediasource.ErrUnresolvable)
		assert.Equal(t, tc.isAction, errors.Is(err, ErrAction), tc.msg)
		assert.ErrorIs(t, err, tc.err)
		assert.True(t, src.Connected())
	}
}

func alive(bootID string) ssdp.ServiceInfo {
	h := http.Header{}
	if bootID != "" {
		h.Set(ssdp.HeaderBootID, bootID)
	}
	return ssdp.ServiceInfo{USN: testUSN, Location: "http://fake/new.xml", Header: h}
}

func TestSSDPRebootReconnects(t *testing.T) {
	f := &countingFactory{dev: newFakeDevice()}
	src := NewDeviceSource(f, "x", "X", "", testUSN, log.Default)
	ctx := context.Background()

	src.HandleSSDP(ctx, alive("1"), ssdp.ChangeAlive)
	require.True(t, src.Connected())
	assert.Equal(t, "http://fake/new.xml", src.Location())
	assert.EqualValues(t, 1, f.creates.Load())

	// Repeated announcements of the same boot don't reconnect.
	src.HandleSSDP(ctx, alive("1"), ssdp.ChangeAlive)
	assert.EqualValues(t, 1, f.creates.Load())

	src.HandleSSDP(ctx, alive("2"), ssdp.ChangeAlive)
	assert.True(t, src.Connected())
	assert.EqualValues(t, 2, f.creates.Load())
}

func TestSSDPAnnouncedRebootKeepsConnection(t *testing.T) {
	f := &countingFactory{dev: newFakeDevice()}
	src := NewDeviceSource(f, "x", "X", "", testUSN, log.Default)
	ctx := context.Background()
	src.HandleSSDP(ctx, alive("1"), ssdp.ChangeAlive)
	require.True(t, src.Connected())

	update := alive("1")
	update.Header.Set(ssdp.HeaderNextBootID, "2")
	src.HandleSSDP(ctx, update, ssdp.ChangeUpdate)
	src.HandleSSDP(ctx, alive("2"), ssdp.ChangeAlive)
	assert.True(t, src.Connected())
	assert.EqualValues(t, 1, f.creates.Load())

	// An update for a boot we haven't seen is ignored.
	stale := alive("7")
	stale.Header.Set(ssdp.HeaderNextBootID, "8")
	src.HandleSSDP(ctx, stale, ssdp.ChangeUpdate)
	src.HandleSSDP(ctx, alive("8"), ssdp.ChangeAlive)
	assert.EqualValues(t, 2, f.creates.Load())
}

func TestSSDPByeByeAndFailedConnect(t *testing.T) {
	f := &countingFactory{dev: newFakeDevice()}
	src := NewDeviceSource(f, "x", "X", "", testUSN, log.Default)
	ctx := context.Background()
	src.HandleSSDP(ctx, alive(""), ssdp.ChangeAlive)
	require.True(t, src.Connected())

	src.HandleSSDP(ctx, alive(""), ssdp.ChangeByeBye)
	assert.False(t, src.Connected())

	f.err = errors.New("no route to host")
	src.HandleSSDP(ctx, alive(""), ssdp.ChangeAlive)
	assert.False(t, src.Connected())
	assert.EqualValues(t, 2, f.creates.Load())

	// Don't retry until something changes.
	src.HandleSSDP(ctx, alive(""), ssdp.ChangeAlive)
	assert.EqualValues(t, 2, f.creates.Load())

	f.err = nil
	src.HandleSSDP(ctx, alive(""), ssdp.ChangeByeBye)
	src.HandleSSDP(ctx, alive(""), ssdp.ChangeAlive)
	assert.True(t, src.Connected())
	assert.EqualValues(t, 3, f.creates.Load())
}

func TestUnavailableDeviceIsReplaced(t *testing.T) {
	stale := newFakeDevice()
	f := &countingFactory{dev: stale}
	src := NewDeviceSource(f, "x", "X", "http://fake/desc.xml", testUSN, log.Default)
	ctx := context.Background()
	require.NoError(t, src.Connect(ctx))
	stale.available = false
	assert.True(t, src.Connected())
	assert.False(t, src.Available())

	fresh := newFakeDevice()
	f.dev = fresh
	src.HandleSSDP(ctx, alive(""), ssdp.ChangeAlive)
	assert.True(t, src.Available())
	assert.EqualValues(t, 2, f.creates.Load())

	fresh.available = false
	f.dev = newFakeDevice()
	require.NoError(t, src.Connect(ctx))
	assert.True(t, src.Available())
	assert.EqualValues(t, 3, f.creates.Load())

	// Requests drop a device found unavailable.
	f.dev.(*fakeDevice).available = false
	_, err := src.BrowseObject(ctx, "0")
	assert.EqualError(t, err, "DMS is not connected")
	assert.False(t, src.Connected())
}

type recordedLog struct {
	mu      sync.Mutex
	records []log.Record
}

func (me *recordedLog) Handle(r log.Record) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.records = append(me.records, r)
}

func (me *recordedLog) find(text string) (ret []log.Record) {
	me.mu.Lock()
	defer me.mu.Unlock()
	for _, r := range me.records {
		if r.Msg.String() == text {
			ret = append(ret, r)
		}
	}
	return
}

func TestDisconnectLogsUnderCurrentID(t *testing.T) {
	var rec recordedLog
	logger := log.NewLogger()
	logger.SetHandlers(&rec)
	logger = logger.WithFilterLevel(log.Debug)
	f := &countingFactory{dev: newFakeDevice()}
	src := NewDeviceSource(f, "x", "X", "http://fake/desc.xml", testUSN, logger)
	require.NoError(t, src.Connect(context.Background()))
	src.setNameAndID("Y", "y")
	src.Disconnect()
	src.Disconnect()
	assert.False(t, src.Connected())

	disconnected := rec.find(`disconnected from "Fake Server"`)
	require.Len(t, disconnected, 1)
	assert.Equal(t, []string{"dms", "y"}, disconnected[0].Names[:2])
	notConnected := rec.find("not connected")
	require.Len(t, notConnected, 1)
	assert.Equal(t, log.Debug, notConnected[0].Level)
	assert.Equal(t, []string{"dms", "y"}, notConnected[0].Names[:2])
}
