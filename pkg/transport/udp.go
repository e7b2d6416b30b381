package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
)

const (
	DefaultDataTimeout = time.Second
	DefaultBufferSize  = 32768
	FeedbackPort       = 50110

	// drainWait bounds the extra read used to look for newer queued datagrams.
	drainWait = 200 * time.Microsecond
)

// DataPort is the UDP socket tracking data arrives on. It also sends
// feedback and DTrack1 commands back to the controller.
type DataPort struct {
	conn    *net.UDPConn
	group   net.IP
	ifi     *net.Interface
	buf     []byte
	timeout time.Duration
	sender  *net.UDPAddr
	logger  *slog.Logger
}

type DataOption func(*DataPort)

func WithDataTimeout(d time.Duration) DataOption {
	return func(p *DataPort) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithDataBufferSize(n int) DataOption {
	return func(p *DataPort) {
		if n > 0 {
			p.buf = make([]byte, n)
		}
	}
}

// WithMulticastGroup joins group after binding. ifi selects the interface,
// nil lets the system choose.
func WithMulticastGroup(group net.IP, ifi *net.Interface) DataOption {
	return func(p *DataPort) {
		if group != nil && group.IsMulticast() {
			p.group, p.ifi = group, ifi
		}
	}
}

func WithDataLogger(logger *slog.Logger) DataOption {
	return func(p *DataPort) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// ListenData binds the data port. Port 0 picks a free port.
func ListenData(port int, opts ...DataOption) (*DataPort, error) {
	p := &DataPort{
		buf:     make([]byte, DefaultBufferSize),
		timeout: DefaultDataTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, errclass.Wrap(errclass.Network, "listen data", err)
	}
	if p.group != nil {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.JoinGroup(p.ifi, &net.UDPAddr{IP: p.group}); err != nil {
			_ = conn.Close()
			return nil, errclass.Wrap(errclass.Network, "join multicast group "+p.group.String(), err)
		}
		p.logger.Info("joined multicast group", "group", p.group.String())
	}
	p.conn = conn
	p.logger.Debug("data port open", "addr", conn.LocalAddr().String())
	return p, nil
}

func (p *DataPort) Port() int {
	return p.conn.LocalAddr().(*net.UDPAddr).Port
}

func (p *DataPort) Multicast() net.IP { return p.group }

func (p *DataPort) SetTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

func (p *DataPort) Timeout() time.Duration { return p.timeout }

func (p *DataPort) SetBufferSize(n int) {
	if n > 0 {
		p.buf = make([]byte, n)
	}
}

func (p *DataPort) BufferSize() int { return len(p.buf) }

// RemoteIP is the sender of the last received datagram, nil before the
// first one.
func (p *DataPort) RemoteIP() net.IP {
	if p.sender == nil {
		return nil
	}
	return p.sender.IP
}

// Receive waits for a datagram and returns the newest one queued. Older
// datagrams are dropped. A datagram filling the whole buffer may have been
// truncated and is reported as a network error.
func (p *DataPort) Receive() ([]byte, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
		return nil, errclass.Wrap(errclass.Network, "receive", err)
	}
	n, from, err := p.conn.ReadFromUDP(p.buf)
	if err != nil {
		return nil, errclass.Wrap(errclass.Of(err), "receive", err)
	}

	latest := append([]byte(nil), p.buf[:n]...)
	dropped := 0
	for n < len(p.buf) {
		if err := p.conn.SetReadDeadline(time.Now().Add(drainWait)); err != nil {
			break
		}
		m, f, err := p.conn.ReadFromUDP(p.buf)
		if err != nil {
			break
		}
		n, from = m, f
		latest = append(latest[:0], p.buf[:n]...)
		dropped++
	}
	p.sender = from
	if dropped > 0 {
		p.logger.Debug("dropped queued datagrams", "count", dropped)
	}
	if n >= len(p.buf) {
		return nil, errclass.New(errclass.Network, fmt.Sprintf("receive: datagram of %d bytes fills buffer", n))
	}
	return latest, nil
}

// SendTo writes data followed by a NUL byte to ip:port.
func (p *DataPort) SendTo(ip net.IP, port int, data string) error {
	if ip == nil {
		return errclass.New(errclass.Network, "send: no destination address")
	}
	msg := append([]byte(data), 0)
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.timeout)); err != nil {
		return errclass.Wrap(errclass.Network, "send", err)
	}
	if _, err := p.conn.WriteToUDP(msg, &net.UDPAddr{IP: ip, Port: port}); err != nil {
		return errclass.Wrap(errclass.Network, "send", err)
	}
	return nil
}

func (p *DataPort) Close() error {
	if p.group != nil {
		_ = ipv4.NewPacketConn(p.conn).LeaveGroup(p.ifi, &net.UDPAddr{IP: p.group})
	}
	return p.conn.Close()
}

var errNoReply = errors.New("no replies over udp")

// Sender writes NUL-terminated datagrams, as DataPort does.
type Sender interface {
	SendTo(ip net.IP, port int, data string) error
}

// UDPCommandConn sends DTrack1 style commands from the data socket. The
// controller does not answer them.
type UDPCommandConn struct {
	port Sender
	ip   net.IP
	dst  int
}

func NewUDPCommandConn(port Sender, ip net.IP, dstPort int) *UDPCommandConn {
	return &UDPCommandConn{port: port, ip: ip, dst: dstPort}
}

func (c *UDPCommandConn) WriteLine(line string, _ time.Duration) error {
	return c.port.SendTo(c.ip, c.dst, line)
}

func (c *UDPCommandConn) ReadLine(time.Duration) (string, error) {
	return "", errclass.Wrap(errclass.Network, "receive", errNoReply)
}

// Close leaves the shared data socket open.
func (c *UDPCommandConn) Close() error { return nil }
