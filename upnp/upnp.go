package upnp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var serviceURNRegexp *regexp.Regexp = regexp.MustCompile(`^urn:schemas-upnp-org:service:(\w+):(\d+)$`)

type ServiceURN struct {
	Type    string
	Version uint64
}

func (me ServiceURN) String() string {
	return fmt.Sprintf("urn:schemas-upnp-org:service:%s:%d", me.Type, me.Version)
}

func ParseServiceType(s string) (ret ServiceURN, err error) {
	matches := serviceURNRegexp.FindStringSubmatch(s)
	if matches == nil {
		err = fmt.Errorf("bad service type: %q", s)
		return
	}
	ret.Type = matches[1]
	ret.Version, err = strconv.ParseUint(matches[2], 0, 0)
	return
}

// Satisfies reports whether a service of type me can serve callers of want: same type and at least the
// same version.
func (me ServiceURN) Satisfies(want ServiceURN) bool {
	return me.Type == want.Type && me.Version >= want.Version
}

type SpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type Icon struct {
	Mimetype string `xml:"mimetype"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	Depth    int    `xml:"depth"`
	URL      string `xml:"url"`
}

type Service struct {
	XMLName     xml.Name `xml:"service"`
	ServiceType string   `xml:"serviceType"`
	ServiceId   string   `xml:"serviceId"`
	SCPDURL     string
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

type Device struct {
	DeviceType   string    `xml:"deviceType"`
	FriendlyName string    `xml:"friendlyName"`
	Manufacturer string    `xml:"manufacturer"`
	ModelName    string    `xml:"modelName"`
	UDN          string    `xml:"UDN"`
	IconList     []Icon    `xml:"iconList>icon"`
	ServiceList  []Service `xml:"serviceList>service"`
	DeviceList   []Device  `xml:"deviceList>device"`
}

// FindService searches this device and its embedded devices, depth first, for a service that satisfies
// the given type.
func (me *Device) FindService(want ServiceURN) (*Service, bool) {
	for i := range me.ServiceList {
		s := &me.ServiceList[i]
		urn, err := ParseServiceType(s.ServiceType)
		if err == nil && urn.Satisfies(want) {
			return s, true
		}
	}
	for i := range me.DeviceList {
		if s, ok := me.DeviceList[i].FindService(want); ok {
			return s, ok
		}
	}
	return nil, false
}

// LargestIcon returns the widest icon, if any.
func (me *Device) LargestIcon() (ret Icon, ok bool) {
	for _, i := range me.IconList {
		if !ok || i.Width > ret.Width {
			ret = i
			ok = true
		}
	}
	return
}

type DeviceDesc struct {
	XMLName     xml.Name    `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion SpecVersion `xml:"specVersion"`
	URLBase     string      `xml:"URLBase"`
	Device      Device      `xml:"device"`
}

// Error is the UPnPError carried in the detail of a SOAP fault.
type Error struct {
	XMLName xml.Name `xml:"urn:schemas-upnp-org:control-1-0 UPnPError"`
	Code    int      `xml:"errorCode"`
	Desc    string   `xml:"errorDescription"`
}

const (
	InvalidActionErrorCode        = 401
	InvalidArgsErrorCode          = 402
	ActionFailedErrorCode         = 501
	ArgumentValueInvalidErrorCode = 600
)

// ActionError is returned when a device rejected an action it understood.
type ActionError struct {
	Action      string
	Code        int
	Description string
}

func (me *ActionError) Error() string {
	return fmt.Sprintf("UPnP error %d calling %s: %s", me.Code, me.Action, me.Description)
}

// IsActionError reports whether err is an ActionError with one of the given codes, or any code if none
// are given.
func IsActionError(err error, codes ...int) bool {
	var ae *ActionError
	if !errors.As(err, &ae) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if ae.Code == c {
			return true
		}
	}
	return false
}

// ConnectionError means the device could not be reached or dropped the connection, including timeouts.
type ConnectionError struct {
	URL string
	Err error
}

func (me *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", me.URL, me.Err)
}

func (me *ConnectionError) Unwrap() error {
	return me.Err
}

// ResponseError is an unexpected HTTP response from a device.
type ResponseError struct {
	URL        string
	StatusCode int
	Status     string
}

func (me *ResponseError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %s", me.URL, me.Status)
}

// Returns the device UUID from a USN such as "uuid:x::urn:schemas-upnp-org:device:MediaServer:1".
func UDNFromUSN(usn string) string {
	udn, _, _ := strings.Cut(usn, "::")
	return udn
}
