package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/net/html/charset"

	"github.com/anacrolix/mediabrowse/soap"
)

const DefaultTimeout = 7 * time.Second

// Factory fetches device descriptions and returns handles for calling device actions.
type Factory struct {
	Client *http.Client
	// Bounds every request made through devices created by this factory.
	Timeout time.Duration
	Logger  log.Logger
}

func NewFactory(logger log.Logger) *Factory {
	return &Factory{
		Client:  http.DefaultClient,
		Timeout: DefaultTimeout,
		Logger:  logger.WithNames("upnp"),
	}
}

// RemoteDevice is a device on the network described by its root description.
type RemoteDevice struct {
	Location string
	Desc     DeviceDesc

	base    *url.URL
	client  *http.Client
	timeout time.Duration
	logger  log.Logger
}

func (me *Factory) CreateDevice(ctx context.Context, location string) (*RemoteDevice, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing device location: %w", err)
	}
	ret := &RemoteDevice{
		Location: location,
		base:     loc,
		client:   me.Client,
		timeout:  me.Timeout,
		logger:   me.Logger,
	}
	if ret.client == nil {
		ret.client = http.DefaultClient
	}
	if ret.timeout == 0 {
		ret.timeout = DefaultTimeout
	}
	body, err := ret.do(ctx, http.MethodGet, location, nil, nil)
	if err != nil {
		return nil, err
	}
	d := xml.NewDecoder(bytes.NewReader(body))
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&ret.Desc); err != nil {
		return nil, fmt.Errorf("decoding device description from %s: %w", location, err)
	}
	if ret.Desc.URLBase != "" {
		if base, err := url.Parse(ret.Desc.URLBase); err == nil {
			ret.base = loc.ResolveReference(base)
		}
	}
	me.Logger.Levelf(log.Debug, "created device %q (%s) from %s", ret.Desc.Device.FriendlyName, ret.UDN(), location)
	return ret, nil
}

func (me *RemoteDevice) Device() *Device {
	return &me.Desc.Device
}

func (me *RemoteDevice) UDN() string {
	return me.Desc.Device.UDN
}

func (me *RemoteDevice) Name() string {
	return me.Desc.Device.FriendlyName
}

// AbsoluteURL resolves a possibly relative URL from the device against its base URL.
func (me *RemoteDevice) AbsoluteURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return me.base.ResolveReference(u).String()
}

func (me *RemoteDevice) IconURL() string {
	icon, ok := me.Desc.Device.LargestIcon()
	if !ok || icon.URL == "" {
		return ""
	}
	return me.AbsoluteURL(icon.URL)
}

func (me *RemoteDevice) FindService(want ServiceURN) (*Service, bool) {
	return me.Desc.Device.FindService(want)
}

// Call invokes an action on the service and returns the output arguments.
func (me *RemoteDevice) Call(ctx context.Context, svc *Service, action string, args ...soap.Arg) (map[string]string, error) {
	env := soap.NewRequest(svc.ServiceType, action, args...)
	reqBody, err := env.Marshal()
	if err != nil {
		return nil, err
	}
	header := http.Header{
		"Content-Type": {`text/xml; charset="utf-8"`},
		"SOAPACTION":   {fmt.Sprintf(`"%s#%s"`, svc.ServiceType, action)},
	}
	controlURL := me.AbsoluteURL(svc.ControlURL)
	body, err := me.do(ctx, http.MethodPost, controlURL, header, reqBody)
	var re *ResponseError
	if errors.As(err, &re) && re.StatusCode == http.StatusInternalServerError && body != nil {
		// Devices report action errors as SOAP faults with status 500.
		if ae := parseActionError(action, body); ae != nil {
			return nil, ae
		}
	}
	if err != nil {
		return nil, err
	}
	respEnv, err := soap.Unmarshal(body)
	if err != nil {
		return nil, err
	}
	msg, err := respEnv.Parse()
	if err != nil {
		var fault *soap.Fault
		if errors.As(err, &fault) {
			if ae := parseActionError(action, body); ae != nil {
				return nil, ae
			}
		}
		return nil, fmt.Errorf("calling %s: %w", action, err)
	}
	return msg.Args, nil
}

func parseActionError(action string, body []byte) *ActionError {
	env, err := soap.Unmarshal(body)
	if err != nil || env.Body.Fault == nil {
		return nil
	}
	// Namespaces are not checked, some devices declare them on the wrong element.
	var upnpErr struct {
		Code int    `xml:"errorCode"`
		Desc string `xml:"errorDescription"`
	}
	if err := xml.Unmarshal(env.Body.Fault.Detail.Inner, &upnpErr); err != nil {
		return nil
	}
	return &ActionError{
		Action:      action,
		Code:        upnpErr.Code,
		Description: upnpErr.Desc,
	}
}

// do performs the request under the device timeout. Failing to get a response at all is a
// ConnectionError. The body is returned along with a ResponseError for unexpected statuses.
func (me *RemoteDevice) do(ctx context.Context, method, url_ string, header http.Header, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, me.timeout)
	defer cancel()
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url_, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := me.client.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: url_, Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{URL: url_, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return respBody, &ResponseError{URL: url_, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return respBody, nil
}
