package transport

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
)

const (
	CommandPort        = 50105
	DefaultDialTimeout = 5 * time.Second
)

// CommandConn is the TCP connection to the controller's command interface.
// Commands and replies are NUL-terminated strings.
type CommandConn struct {
	conn        net.Conn
	reader      *bufio.Reader
	partial     []byte
	bufSize     int
	dialTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*CommandConn)

func WithBufferSize(n int) Option {
	return func(c *CommandConn) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *CommandConn) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *CommandConn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// DialCommand connects to host:port. A port of 0 means CommandPort.
func DialCommand(ctx context.Context, host string, port int, opts ...Option) (*CommandConn, error) {
	c := &CommandConn{
		bufSize:     4096,
		dialTimeout: DefaultDialTimeout,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if port == 0 {
		port = CommandPort
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errclass.Wrap(errclass.Of(err), "dial "+addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, c.bufSize)
	c.logger.Debug("command connection open", "addr", addr)
	return c, nil
}

func (c *CommandConn) RemoteIP() net.IP {
	if addr, ok := c.conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP
	}
	return nil
}

func (c *CommandConn) WriteLine(line string, timeout time.Duration) error {
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	msg := append([]byte(line), 0x00)
	if _, err := c.conn.Write(msg); err != nil {
		return errclass.Wrap(errclass.Of(err), "write command", err)
	}
	return nil
}

// ReadLine returns the next reply without its NUL terminator. Empty replies
// are skipped.
func (c *CommandConn) ReadLine(timeout time.Duration) (string, error) {
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	for {
		frame, err := c.reader.ReadBytes(0x00)
		if err != nil {
			// keep a reply cut by the deadline for the next read
			c.partial = append(c.partial, frame...)
			return "", errclass.Wrap(errclass.Of(err), "read reply", err)
		}
		if len(c.partial) > 0 {
			frame = append(c.partial, frame...)
			c.partial = nil
		}
		if frame[len(frame)-1] == 0x00 {
			frame = frame[:len(frame)-1]
		}
		if len(frame) == 0 {
			continue
		}
		return string(frame), nil
	}
}

func (c *CommandConn) Close() error {
	return c.conn.Close()
}
