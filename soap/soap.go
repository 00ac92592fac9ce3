package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/net/html/charset"
)

const (
	EnvelopeNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	EncodingStyle = "http://schemas.xmlsoap.org/soap/encoding/"
)

type Arg struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func NewArg(name, value string) Arg {
	return Arg{XMLName: xml.Name{Local: name}, Value: value}
}

type Action struct {
	XMLName xml.Name
	Args    []Arg `xml:",any"`
}

// Fault is a SOAP fault. UPnP puts its error code and description in Detail.
type Fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail Detail `xml:"detail"`
}

type Detail struct {
	Inner []byte `xml:",innerxml"`
}

func (me *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", me.Code, me.String)
}

type Body struct {
	Fault  *Fault  `xml:"http://schemas.xmlsoap.org/soap/envelope/ Fault"`
	Action *Action `xml:",any"`
}

type Envelope struct {
	XMLName       xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	EncodingStyle string   `xml:"encodingStyle,attr"`
	Body          Body     `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

// Message is the action invoked or answered by an Envelope.
type Message struct {
	ServiceType string
	Action      string
	Args        map[string]string
}

// NewRequest wraps the action call, keeping the argument order, which some devices depend on.
func NewRequest(serviceType, action string, args ...Arg) *Envelope {
	return &Envelope{
		EncodingStyle: EncodingStyle,
		Body: Body{
			Action: &Action{
				XMLName: xml.Name{Space: serviceType, Local: action},
				Args:    args,
			},
		},
	}
}

func (me *Envelope) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(me); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding soap envelope: %w", err)
	}
	return &env, nil
}

var ErrNoAction = errors.New("soap body has no action")

// Parse returns the message carried by the envelope, or the fault if there is one.
func (me *Envelope) Parse() (*Message, error) {
	if me.Body.Fault != nil {
		return nil, me.Body.Fault
	}
	if me.Body.Action == nil {
		return nil, ErrNoAction
	}
	ret := &Message{
		ServiceType: me.Body.Action.XMLName.Space,
		Action:      me.Body.Action.XMLName.Local,
		Args:        make(map[string]string, len(me.Body.Action.Args)),
	}
	for _, arg := range me.Body.Action.Args {
		k := arg.XMLName.Local
		if _, ok := ret.Args[k]; ok {
			return nil, fmt.Errorf("duplicate argument name: %s", k)
		}
		ret.Args[k] = arg.Value
	}
	return ret, nil
}

// Wrap builds an envelope for the message with its arguments in name order.
func (me *Message) Wrap() *Envelope {
	keys := make([]string, 0, len(me.Args))
	for k := range me.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]Arg, 0, len(keys))
	for _, k := range keys {
		args = append(args, NewArg(k, me.Args[k]))
	}
	return NewRequest(me.ServiceType, me.Action, args...)
}

// NewFault builds the fault envelope a UPnP device returns for a failed action. detail is marshalled into
// the fault detail.
func NewFault(detail any) (*Envelope, error) {
	inner, err := xml.Marshal(detail)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EncodingStyle: EncodingStyle,
		Body: Body{
			Fault: &Fault{
				Code:   "s:Client",
				String: "UPnPError",
				Detail: Detail{Inner: inner},
			},
		},
	}, nil
}
