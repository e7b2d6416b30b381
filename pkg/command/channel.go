// Package command implements the synchronous request/reply exchange with a
// tracking controller. Asynchronous event messages that arrive while a reply is
// awaited are queued and drained by polling.
package command

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
)

const (
	DefaultTimeout = 10 * time.Second
	// MaxLength is the longest command the controller accepts.
	MaxLength = 200

	ReplyOK = "dtrack2 ok"

	CmdStart    = "dtrack2 tracking start"
	CmdStop     = "dtrack2 tracking stop"
	CmdShutdown = "dtrack2 system shutdown"
	CmdGetMsg   = "dtrack2 getmsg"
)

var (
	// ErrBusy is returned when an exchange is started while another one is
	// still waiting for its reply.
	ErrBusy = errors.New("command: exchange already in progress")
	// ErrClosed is returned once the connection broke or was closed.
	ErrClosed = errclass.New(errclass.Network, "command: channel closed")
)

// LineConn moves NUL-terminated command lines to and from the controller.
type LineConn interface {
	WriteLine(line string, timeout time.Duration) error
	ReadLine(timeout time.Duration) (string, error)
	Close() error
}

// DeviceError is an error reported by the controller itself.
type DeviceError struct {
	Code int
	Text string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("controller error %d: %s", e.Code, e.Text)
}

// Observer is notified after every exchange with its outcome.
type Observer func(err error, elapsed time.Duration)

type Channel struct {
	conn     LineConn
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer

	busy    atomic.Bool
	valid   bool
	queue   []Message
	// stale holds commands that timed out; their replies may still arrive
	// and are discarded before the next reply is matched.
	stale   []string
	lastErr errclass.Kind
	lastDev *DeviceError
}

type Option func(*Channel)

func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(fn Observer) Option {
	return func(c *Channel) {
		if fn != nil {
			c.observer = fn
		}
	}
}

func NewChannel(conn LineConn, opts ...Option) *Channel {
	c := &Channel{
		conn:    conn,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
		valid:   conn != nil,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

func (c *Channel) Timeout() time.Duration { return c.timeout }

// Valid reports whether the connection is still usable.
func (c *Channel) Valid() bool { return c.valid }

// LastError is the kind of the last exchange failure, None after a success.
func (c *Channel) LastError() errclass.Kind { return c.lastErr }

// LastDeviceError returns the controller error of the last exchange, or nil.
func (c *Channel) LastDeviceError() *DeviceError { return c.lastDev }

func (c *Channel) Close() error {
	if c.conn == nil {
		return nil
	}
	c.valid = false
	return c.conn.Close()
}

// Send writes cmd without waiting for a reply.
func (c *Channel) Send(cmd string) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	if err := c.check(cmd); err != nil {
		return c.record(err)
	}
	c.logger.Debug("send command", "cmd", cmd)
	if err := c.conn.WriteLine(cmd, c.timeout); err != nil {
		return c.record(c.ioError("send", err))
	}
	return c.record(nil)
}

// Exchange sends cmd and returns the synchronous reply line. "dtrack2 ok" and
// value lines are returned verbatim; "dtrack2 err" lines become a *DeviceError.
// Event messages received meanwhile are queued, except for a getmsg command
// where the first message line is the reply.
func (c *Channel) Exchange(cmd string) (string, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer c.busy.Store(false)

	start := time.Now()
	reply, err := c.exchange(cmd, start.Add(c.timeout))
	err = c.record(err)
	if c.observer != nil {
		c.observer(err, time.Since(start))
	}
	return reply, err
}

func (c *Channel) exchange(cmd string, deadline time.Time) (string, error) {
	c.lastDev = nil
	if err := c.check(cmd); err != nil {
		return "", err
	}

	c.logger.Debug("send command", "cmd", cmd)
	if err := c.conn.WriteLine(cmd, time.Until(deadline)); err != nil {
		return "", c.ioError("send", err)
	}

	wantMsg := cmd == CmdGetMsg
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", c.timedOut(cmd)
		}
		line, err := c.conn.ReadLine(remaining)
		if errclass.IsTimeout(err) {
			return "", c.timedOut(cmd)
		}
		if err != nil {
			return "", c.ioError("receive", err)
		}
		c.logger.Debug("received reply", "line", line)

		isMsg := strings.HasPrefix(line, msgPrefix)
		if len(c.stale) > 0 && (!isMsg || c.stale[0] == CmdGetMsg) {
			c.logger.Debug("discarding late reply", "cmd", c.stale[0], "line", line)
			c.stale = c.stale[1:]
			continue
		}

		switch {
		case line == ReplyOK:
			return line, nil
		case strings.HasPrefix(line, errPrefix):
			derr, perr := parseDeviceError(line)
			if perr != nil {
				return "", perr
			}
			c.lastDev = derr
			c.logger.Warn("controller rejected command", "cmd", cmd, "code", derr.Code, "text", derr.Text)
			return "", derr
		case isMsg:
			if wantMsg {
				return line, nil
			}
			msg, perr := ParseMessage(line)
			if perr != nil {
				c.logger.Warn("dropping malformed controller message", "line", line, "err", perr)
				continue
			}
			c.queue = append(c.queue, msg)
		default:
			return line, nil
		}
	}
}

// timedOut remembers cmd as unanswered so its reply is not taken for the
// reply to a later command.
func (c *Channel) timedOut(cmd string) error {
	c.stale = append(c.stale, cmd)
	return errclass.New(errclass.Timeout, "command: no reply to "+quote(cmd))
}

func (c *Channel) check(cmd string) error {
	if !c.valid {
		return ErrClosed
	}
	if len(cmd) > MaxLength {
		return errclass.New(errclass.Network, fmt.Sprintf("command: %d characters exceed limit of %d", len(cmd), MaxLength))
	}
	return nil
}

func (c *Channel) ioError(op string, err error) error {
	kind := errclass.Of(err)
	if kind != errclass.Timeout {
		c.valid = false
		c.logger.Warn("command connection lost", "op", op, "err", err)
	}
	return errclass.Wrap(kind, "command: "+op, err)
}

func (c *Channel) record(err error) error {
	var derr *DeviceError
	switch {
	case err == nil:
		c.lastErr = errclass.None
	case errors.As(err, &derr):
		c.lastErr = errclass.None
	default:
		c.lastErr = errclass.Of(err)
	}
	return err
}

// Command sends cmd and expects "dtrack2 ok".
func (c *Channel) Command(cmd string) error {
	reply, err := c.Exchange(cmd)
	if err != nil {
		return err
	}
	if reply != ReplyOK {
		c.lastErr = errclass.Parse
		return errclass.New(errclass.Parse, "command: unexpected reply "+quote(reply))
	}
	return nil
}

func (c *Channel) StartMeasurement() error { return c.Command(CmdStart) }

func (c *Channel) StopMeasurement() error { return c.Command(CmdStop) }

func (c *Channel) Shutdown() error { return c.Command(CmdShutdown) }

func quote(s string) string { return fmt.Sprintf("%q", s) }
