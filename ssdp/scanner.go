package ssdp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/mediabrowse/metrics"
	"github.com/anacrolix/mediabrowse/queue"
)

const DefaultSearchInterval = 5 * time.Minute

// Callback is told about a device appearing, leaving or changing.
type Callback func(ctx context.Context, info ServiceInfo, change Change)

// Filter selects which announcements a callback receives. A nil Filter matches everything.
type Filter func(ServiceInfo) bool

func MatchUSN(usn string) Filter {
	return func(info ServiceInfo) bool {
		return info.USN == usn
	}
}

func MatchUDN(udn string) Filter {
	return func(info ServiceInfo) bool {
		return info.UDN() == udn
	}
}

type event struct {
	ctx    context.Context
	info   ServiceInfo
	change Change
}

type subscription struct {
	cb     Callback
	filter Filter
	events *queue.Queue[event]
}

func (me *subscription) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		ev, ok := me.events.Get()
		if !ok {
			return
		}
		me.cb(ev.ctx, ev.info, ev.change)
	}
}

// Scanner listens for SSDP announcements and periodically searches for media servers. Each registered
// callback receives its events in order on its own goroutine.
type Scanner struct {
	// Interfaces to join the multicast group on. All multicast capable interfaces that are up if empty.
	Interfaces     []net.Interface
	SearchInterval time.Duration
	SearchTarget   string
	Logger         log.Logger

	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	closed bool
	wg     sync.WaitGroup
	// Set while running.
	unicast *ipv4.PacketConn
}

func NewScanner(logger log.Logger) *Scanner {
	return &Scanner{
		SearchInterval: DefaultSearchInterval,
		SearchTarget:   MediaServerDeviceType,
		Logger:         logger.WithNames("ssdp"),
	}
}

// RegisterCallback returns a func that unregisters it. Events already queued for the callback are
// still delivered.
func (me *Scanner) RegisterCallback(cb Callback, filter Filter) (unregister func()) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.subs == nil {
		me.subs = make(map[int]*subscription)
	}
	id := me.nextID
	me.nextID++
	sub := &subscription{
		cb:     cb,
		filter: filter,
		events: queue.New[event](),
	}
	if me.closed {
		sub.events.Close()
		return func() {}
	}
	me.subs[id] = sub
	me.wg.Add(1)
	go sub.run(&me.wg)
	return func() {
		me.mu.Lock()
		defer me.mu.Unlock()
		if s, ok := me.subs[id]; ok {
			delete(me.subs, id)
			s.events.Close()
		}
	}
}

// Dispatch hands an announcement to every callback whose filter matches it.
func (me *Scanner) Dispatch(ctx context.Context, info ServiceInfo, change Change) {
	metrics.IncSSDPNotification(change.String())
	me.mu.Lock()
	defer me.mu.Unlock()
	for _, sub := range me.subs {
		if sub.filter != nil && !sub.filter(info) {
			continue
		}
		sub.events.Put(event{ctx, info, change})
	}
}

// Close unregisters all callbacks and waits for them to finish their queued events.
func (me *Scanner) Close() {
	me.mu.Lock()
	me.closed = true
	for id, sub := range me.subs {
		delete(me.subs, id)
		sub.events.Close()
	}
	me.mu.Unlock()
	me.wg.Wait()
}

func (me *Scanner) interfaces() ([]net.Interface, error) {
	if len(me.Interfaces) != 0 {
		return me.Interfaces, nil
	}
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ret []net.Interface
	for _, ifi := range ifs {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		ret = append(ret, ifi)
	}
	return ret, nil
}

func (me *Scanner) listenMulticast(ctx context.Context) (*ipv4.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	c, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:1900")
	if err != nil {
		return nil, err
	}
	pc := ipv4.NewPacketConn(c)
	ifs, err := me.interfaces()
	if err != nil {
		c.Close()
		return nil, err
	}
	joined := 0
	for i := range ifs {
		if err := pc.JoinGroup(&ifs[i], &net.UDPAddr{IP: NetAddr.IP}); err != nil {
			me.Logger.Levelf(log.Debug, "joining %v on %q: %v", NetAddr.IP, ifs[i].Name, err)
			continue
		}
		joined++
	}
	if joined == 0 {
		c.Close()
		return nil, errors.New("could not join ssdp multicast group on any interface")
	}
	return pc, nil
}

func (me *Scanner) listenUnicast() (*ipv4.PacketConn, error) {
	c, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	pc := ipv4.NewPacketConn(c)
	if err := pc.SetMulticastTTL(2); err != nil {
		me.Logger.Levelf(log.Debug, "setting multicast ttl: %v", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		me.Logger.Levelf(log.Debug, "setting multicast loopback: %v", err)
	}
	return pc, nil
}

// Search sends an M-SEARCH for st, or the scanner's SearchTarget if empty. Responses are dispatched as
// alive announcements. It fails if the scanner isn't running.
func (me *Scanner) Search(st string) error {
	me.mu.Lock()
	uc := me.unicast
	me.mu.Unlock()
	if uc == nil {
		return errors.New("ssdp scanner not running")
	}
	if st == "" {
		st = me.SearchTarget
	}
	me.search(uc, st)
	return nil
}

// Sends an M-SEARCH out of every interface.
func (me *Scanner) search(pc *ipv4.PacketConn, st string) {
	msg := makeSearchMessage(st, 2)
	ifs, err := me.interfaces()
	if err != nil {
		me.Logger.Levelf(log.Warning, "listing interfaces: %v", err)
		return
	}
	for i := range ifs {
		if err := pc.SetMulticastInterface(&ifs[i]); err != nil {
			continue
		}
		if _, err := pc.WriteTo(msg, nil, NetAddr); err != nil {
			me.Logger.Levelf(log.Debug, "sending search on %q: %v", ifs[i].Name, err)
		}
	}
}

// Run listens and searches until ctx is done.
func (me *Scanner) Run(ctx context.Context) error {
	mc, err := me.listenMulticast(ctx)
	if err != nil {
		return err
	}
	uc, err := me.listenUnicast()
	if err != nil {
		mc.Close()
		return err
	}
	me.mu.Lock()
	me.unicast = uc
	me.mu.Unlock()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		me.mu.Lock()
		me.unicast = nil
		me.mu.Unlock()
		mc.Close()
		uc.Close()
		return nil
	})
	eg.Go(func() error {
		return me.read(ctx, mc, func(b []byte) {
			info, change, ok, err := ParseNotify(b)
			if err != nil {
				me.Logger.Levelf(log.Debug, "parsing notification: %v", err)
				return
			}
			if ok {
				me.Dispatch(ctx, info, change)
			}
		})
	})
	eg.Go(func() error {
		return me.read(ctx, uc, func(b []byte) {
			info, err := ParseSearchResponse(b)
			if err != nil {
				me.Logger.Levelf(log.Debug, "parsing search response: %v", err)
				return
			}
			me.Dispatch(ctx, info, ChangeAlive)
		})
	})
	eg.Go(func() error {
		interval := me.SearchInterval
		if interval <= 0 {
			interval = DefaultSearchInterval
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			me.search(uc, me.SearchTarget)
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
	})
	return eg.Wait()
}

func (me *Scanner) read(ctx context.Context, pc *ipv4.PacketConn, handle func([]byte)) error {
	b := make([]byte, 0x10000)
	for {
		n, _, _, err := pc.ReadFrom(b)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		handle(append([]byte(nil), b[:n]...))
	}
}
