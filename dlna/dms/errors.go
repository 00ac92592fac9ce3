package dms

import (
	"errors"
	"fmt"

	"github.com/anacrolix/mediabrowse/mediasource"
)

var (
	ErrDeviceConnection = errors.New("device connection error")
	// The server understood the request and refused it.
	ErrAction = errors.New("device action error")
)

type Kind int

const (
	KindConnection Kind = iota + 1
	KindAction
)

// Error is a failure talking to a media server. It is both a browse error and unresolvable, so callers
// of either operation handle it without knowing about DLNA.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (me *Error) Error() string {
	return me.Msg
}

func (me *Error) Unwrap() error {
	return me.Err
}

func (me *Error) Is(target error) bool {
	switch target {
	case ErrDeviceConnection, mediasource.ErrBrowse, mediasource.ErrUnresolvable:
		return true
	case ErrAction:
		return me.Kind == KindAction
	}
	return false
}

func connectionErrorf(err error, format string, a ...any) error {
	return &Error{Kind: KindConnection, Msg: fmt.Sprintf(format, a...), Err: err}
}

func actionErrorf(err error, format string, a ...any) error {
	return &Error{Kind: KindAction, Msg: fmt.Sprintf(format, a...), Err: err}
}
