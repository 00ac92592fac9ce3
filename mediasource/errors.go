package mediasource

import (
	"errors"
	"fmt"
)

var (
	// Listing a location failed.
	ErrBrowse = errors.New("browse error")
	// Turning an identifier into playable media failed.
	ErrUnresolvable = errors.New("unresolvable")
)

// Fault records which operation an Error was raised for.
type Fault int

const (
	FaultBrowse Fault = iota + 1
	FaultResolve
)

func (me Fault) sentinel() error {
	switch me {
	case FaultBrowse:
		return ErrBrowse
	case FaultResolve:
		return ErrUnresolvable
	}
	return nil
}

type Error struct {
	Fault Fault
	Msg   string
	Err   error
}

func (me *Error) Error() string {
	return me.Msg
}

func (me *Error) Unwrap() error {
	return me.Err
}

func (me *Error) Is(target error) bool {
	return target != nil && target == me.Fault.sentinel()
}

func BrowseErrorf(format string, a ...any) error {
	return &Error{Fault: FaultBrowse, Msg: fmt.Sprintf(format, a...)}
}

func Unresolvablef(format string, a ...any) error {
	return &Error{Fault: FaultResolve, Msg: fmt.Sprintf(format, a...)}
}

// Errorf returns an error of the given fault that wraps err.
func Errorf(fault Fault, err error, format string, a ...any) error {
	return &Error{Fault: fault, Msg: fmt.Sprintf(format, a...), Err: err}
}

func IsBrowseError(err error) bool {
	return errors.Is(err, ErrBrowse)
}

func IsUnresolvable(err error) bool {
	return errors.Is(err, ErrUnresolvable)
}
