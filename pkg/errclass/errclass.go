// Package errclass classifies failures of the data and command channels into the
// four kinds callers act on: none, timeout, network and parse.
package errclass

import (
	"errors"
	"net"
	"os"
)

// Kind is the classification kept in a channel's last-error register.
type Kind int

const (
	None Kind = iota
	Timeout
	Network
	Parse
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Timeout:
		return "timeout"
	case Network:
		return "network"
	case Parse:
		return "parse"
	default:
		return "unknown"
	}
}

var (
	ErrTimeout = errors.New("timeout")
	ErrNetwork = errors.New("network error")
	ErrParse   = errors.New("parse error")
)

// Error attaches a kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func (k Kind) sentinel() error {
	switch k {
	case Timeout:
		return ErrTimeout
	case Parse:
		return ErrParse
	default:
		return ErrNetwork
	}
}

// New returns an error of the given kind without an underlying cause.
func New(kind Kind, op string) error {
	return &Error{Kind: kind, Op: op}
}

// Wrap classifies err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of returns the kind of err. Socket deadlines count as timeouts and any other
// unclassified failure is reported as a network error.
func Of(err error) Kind {
	if err == nil {
		return None
	}
	switch {
	case errors.Is(err, ErrParse):
		return Parse
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrNetwork):
		return Network
	case errors.Is(err, os.ErrDeadlineExceeded):
		return Timeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Timeout
	}
	return Network
}

func IsTimeout(err error) bool { return Of(err) == Timeout }

func IsParse(err error) bool { return Of(err) == Parse }
