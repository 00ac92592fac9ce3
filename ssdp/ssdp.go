package ssdp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	g "github.com/anacrolix/generics"
)

const (
	AddrString = "239.255.255.250:1900"

	MediaServerDeviceType = "urn:schemas-upnp-org:device:MediaServer:1"

	aliveNTS  = "ssdp:alive"
	byebyeNTS = "ssdp:byebye"
	updateNTS = "ssdp:update"

	HeaderBootID     = "BOOTID.UPNP.ORG"
	HeaderNextBootID = "NEXTBOOTID.UPNP.ORG"
)

var NetAddr *net.UDPAddr

func init() {
	var err error
	NetAddr, err = net.ResolveUDPAddr("udp4", AddrString)
	if err != nil {
		panic(err)
	}
}

type badStringError struct {
	what string
	str  string
}

func (e *badStringError) Error() string { return fmt.Sprintf("%s %q", e.what, e.str) }

type Request struct {
	Method     string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
}

func ReadRequest(b *bufio.Reader) (req *Request, err error) {
	tp := textproto.NewReader(b)
	var s string
	if s, err = tp.ReadLine(); err != nil {
		return nil, err
	}
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()

	f := strings.SplitN(s, " ", 3)
	if len(f) != 3 {
		return nil, &badStringError{"malformed request line", s}
	}
	if f[1] != "*" {
		return nil, &badStringError{"bad URL request", f[1]}
	}
	req = &Request{
		Method: f[0],
	}
	var ok bool
	if req.ProtoMajor, req.ProtoMinor, ok = http.ParseHTTPVersion(f[2]); !ok {
		return nil, &badStringError{"malformed HTTP version", f[2]}
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	req.Header = http.Header(mimeHeader)
	return
}

// Change is what a notification says happened to a device.
type Change int

const (
	ChangeAlive Change = iota + 1
	ChangeByeBye
	ChangeUpdate
)

func (me Change) String() string {
	switch me {
	case ChangeAlive:
		return "alive"
	case ChangeByeBye:
		return "byebye"
	case ChangeUpdate:
		return "update"
	}
	return "unknown"
}

func ParseChange(nts string) (Change, bool) {
	switch strings.ToLower(strings.TrimSpace(nts)) {
	case aliveNTS:
		return ChangeAlive, true
	case byebyeNTS:
		return ChangeByeBye, true
	case updateNTS:
		return ChangeUpdate, true
	}
	return 0, false
}

// ServiceInfo describes an announced or discovered device or service.
type ServiceInfo struct {
	USN string
	// NT of a notification, or ST of a search response.
	Type     string
	Location string
	Header   http.Header
}

func (me ServiceInfo) UDN() string {
	udn, _, _ := strings.Cut(me.USN, "::")
	return udn
}

func parseBootID(s string) g.Option[int] {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return g.None[int]()
	}
	return g.Some(i)
}

// BootID is the device's boot counter, if it sent a valid one.
func (me ServiceInfo) BootID() g.Option[int] {
	return parseBootID(me.Header.Get(HeaderBootID))
}

// NextBootID is announced by update notifications.
func (me ServiceInfo) NextBootID() g.Option[int] {
	return parseBootID(me.Header.Get(HeaderNextBootID))
}

// ParseNotify reads a NOTIFY request. ok is false for other messages, such as M-SEARCH.
func ParseNotify(buf []byte) (info ServiceInfo, change Change, ok bool, err error) {
	req, err := ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return
	}
	if req.Method != "NOTIFY" {
		return
	}
	change, ok = ParseChange(req.Header.Get("NTS"))
	if !ok {
		return
	}
	info = ServiceInfo{
		USN:      req.Header.Get("USN"),
		Type:     req.Header.Get("NT"),
		Location: req.Header.Get("LOCATION"),
		Header:   req.Header,
	}
	return
}

// ParseSearchResponse reads a unicast response to an M-SEARCH. Responses are treated as alive.
func ParseSearchResponse(buf []byte) (info ServiceInfo, err error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(buf)), nil)
	if err != nil {
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected search response status: %s", resp.Status)
		return
	}
	info = ServiceInfo{
		USN:      resp.Header.Get("USN"),
		Type:     resp.Header.Get("ST"),
		Location: resp.Header.Get("LOCATION"),
		Header:   resp.Header,
	}
	return
}

func makeSearchMessage(st string, mx int) []byte {
	lines := [...][2]string{
		{"HOST", AddrString},
		{"MAN", `"ssdp:discover"`},
		{"MX", strconv.Itoa(mx)},
		{"ST", st},
	}
	buf := &bytes.Buffer{}
	fmt.Fprint(buf, "M-SEARCH * HTTP/1.1\r\n")
	for _, pair := range lines {
		fmt.Fprintf(buf, "%s: %s\r\n", pair[0], pair[1])
	}
	fmt.Fprint(buf, "\r\n")
	return buf.Bytes()
}
