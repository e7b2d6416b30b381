// Package sdk ties the data port, frame parser and command channel together
// into one synchronous client for a tracking controller.
package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
	"github.com/ar-tracking/DTrackSDK/pkg/transport"
)

// RemoteType is the kind of controller commands go to.
type RemoteType int

const (
	RemoteUnknown RemoteType = iota
	// RemoteDTrack1 takes fire-and-forget commands over UDP.
	RemoteDTrack1
	// RemoteDTrack2 takes commands over TCP with synchronous replies.
	RemoteDTrack2
)

func (r RemoteType) String() string {
	switch r {
	case RemoteDTrack1:
		return "dtrack1"
	case RemoteDTrack2:
		return "dtrack2"
	default:
		return "unknown"
	}
}

// DataPort is the datagram source and feedback sink the SDK reads from.
type DataPort interface {
	Receive() ([]byte, error)
	SendTo(ip net.IP, port int, data string) error
	RemoteIP() net.IP
	Port() int
	SetTimeout(d time.Duration)
	SetBufferSize(n int)
	Close() error
}

// Observer receives statistics about receives, parses and exchanges.
type Observer interface {
	ObserveReceive(n int, err error)
	ObserveParse(f *protocol.Frame, elapsed time.Duration, err error)
	ObserveExchange(err error, elapsed time.Duration)
}

type Config struct {
	// DataPort is the local UDP port, 0 picks a free one.
	DataPort int
	// Controller is the controller's host name or IP. A multicast address
	// makes the data port join that group and disables commands.
	Controller string
	// Remote forces the controller type. RemoteUnknown tries TCP first and
	// falls back to DTrack1 when DTrack1Port is set.
	Remote RemoteType
	// CommandPort is the DTrack2 TCP port, default 50105.
	CommandPort int
	DTrack1Port int
	// FeedbackPort receives tactile and flystick feedback, default 50110.
	FeedbackPort int

	DataTimeout    time.Duration
	CommandTimeout time.Duration
	BufferSize     int
}

type SDK struct {
	cfg          Config
	remote       RemoteType
	data         DataPort
	cmd          *command.Channel
	controllerIP net.IP
	group        net.IP

	frame    *protocol.Frame
	raw      []byte
	lastData errclass.Kind
	lastCmd  errclass.Kind

	startDelay time.Duration
	logger     *slog.Logger
	observer   Observer
}

type Option func(*SDK)

func WithLogger(logger *slog.Logger) Option {
	return func(s *SDK) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *SDK) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithDataPort uses port instead of binding a UDP socket.
func WithDataPort(port DataPort) Option {
	return func(s *SDK) {
		if port != nil {
			s.data = port
		}
	}
}

// WithCommandConn uses conn as the DTrack2 command connection instead of
// dialing the controller.
func WithCommandConn(conn command.LineConn) Option {
	return func(s *SDK) {
		if conn != nil {
			s.remote = RemoteDTrack2
			s.cmd = command.NewChannel(conn)
		}
	}
}

// WithDTrack1StartDelay sets the pause after "dtrack 10 3" that older DTrack1
// versions need before accepting "dtrack 31".
func WithDTrack1StartDelay(d time.Duration) Option {
	return func(s *SDK) {
		if d >= 0 {
			s.startDelay = d
		}
	}
}

// New opens the data port and, when a controller is configured, the command
// channel. It never fails: check IsDataInterfaceValid and
// IsCommandInterfaceValid.
func New(cfg Config, opts ...Option) *SDK {
	if cfg.DataTimeout <= 0 {
		cfg.DataTimeout = transport.DefaultDataTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = command.DefaultTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = transport.DefaultBufferSize
	}
	if cfg.FeedbackPort <= 0 {
		cfg.FeedbackPort = transport.FeedbackPort
	}
	s := &SDK{
		cfg:        cfg,
		remote:     cfg.Remote,
		frame:      protocol.NewFrame(),
		startDelay: time.Second,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Controller != "" {
		ip, err := resolveIPv4(cfg.Controller)
		if err != nil {
			s.logger.Warn("cannot resolve controller", "host", cfg.Controller, "err", err)
		} else if ip.IsMulticast() {
			s.group = ip
		} else {
			s.controllerIP = ip
		}
	}

	if s.data == nil {
		dataOpts := []transport.DataOption{
			transport.WithDataTimeout(cfg.DataTimeout),
			transport.WithDataBufferSize(cfg.BufferSize),
			transport.WithDataLogger(s.logger),
		}
		if s.group != nil {
			dataOpts = append(dataOpts, transport.WithMulticastGroup(s.group, nil))
		}
		port, err := transport.ListenData(cfg.DataPort, dataOpts...)
		if err != nil {
			s.logger.Error("cannot open data port", "port", cfg.DataPort, "err", err)
			s.lastData = errclass.Network
			return s
		}
		s.data = port
	} else {
		s.data.SetTimeout(cfg.DataTimeout)
		s.data.SetBufferSize(cfg.BufferSize)
	}

	if s.cmd != nil {
		s.cmd.SetTimeout(cfg.CommandTimeout)
		s.wireChannel()
		return s
	}
	if s.controllerIP == nil {
		return s
	}
	s.connect()
	return s
}

// NewFromConnection accepts "port" for pure listening or "host:port" for
// listening on port with host as controller.
func NewFromConnection(connection string, opts ...Option) *SDK {
	host, port, err := ParseConnection(connection)
	if err != nil {
		s := &SDK{frame: protocol.NewFrame(), lastData: errclass.Network, logger: slog.New(slog.DiscardHandler)}
		for _, opt := range opts {
			opt(s)
		}
		s.logger.Error("invalid connection string", "connection", connection, "err", err)
		return s
	}
	return New(Config{DataPort: port, Controller: host}, opts...)
}

// ParseConnection splits "host:port" or "port" at the last colon.
func ParseConnection(connection string) (host string, port int, err error) {
	portStr := connection
	if i := strings.LastIndexByte(connection, ':'); i >= 0 {
		host, portStr = connection[:i], connection[i+1:]
	}
	p, err := strconv.ParseUint(strings.TrimSpace(portStr), 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("parse port %q: %w", portStr, err)
	}
	return host, int(p), nil
}

func resolveIPv4(host string) (net.IP, error) {
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, err
	}
	return addr.IP, nil
}

func (s *SDK) connect() {
	if s.remote == RemoteDTrack1 {
		s.useDTrack1()
		return
	}
	conn, err := transport.DialCommand(context.Background(), s.controllerIP.String(), s.cfg.CommandPort,
		transport.WithDialTimeout(s.cfg.CommandTimeout),
		transport.WithLogger(s.logger),
	)
	if err != nil {
		s.logger.Warn("no command connection", "controller", s.controllerIP.String(), "err", err)
		if s.remote == RemoteUnknown && s.cfg.DTrack1Port > 0 {
			s.useDTrack1()
		}
		return
	}
	s.remote = RemoteDTrack2
	s.cmd = command.NewChannel(conn, command.WithTimeout(s.cfg.CommandTimeout))
	s.wireChannel()
}

func (s *SDK) useDTrack1() {
	s.remote = RemoteDTrack1
	if s.cfg.DTrack1Port <= 0 {
		return
	}
	conn := transport.NewUDPCommandConn(s.data, s.controllerIP, s.cfg.DTrack1Port)
	s.cmd = command.NewChannel(conn, command.WithTimeout(s.cfg.CommandTimeout))
	s.wireChannel()
}

func (s *SDK) wireChannel() {
	opts := []command.Option{command.WithLogger(s.logger)}
	if s.observer != nil {
		opts = append(opts, command.WithObserver(s.observer.ObserveExchange))
	}
	for _, opt := range opts {
		opt(s.cmd)
	}
}

func (s *SDK) IsDataInterfaceValid() bool { return s.data != nil }

// IsCommandInterfaceValid reports whether a DTrack2 command connection is up.
func (s *SDK) IsCommandInterfaceValid() bool {
	return s.remote == RemoteDTrack2 && s.cmd != nil && s.cmd.Valid()
}

func (s *SDK) RemoteType() RemoteType { return s.remote }

// Multicast is the group the data port listens on, nil for unicast.
func (s *SDK) Multicast() net.IP { return s.group }

func (s *SDK) DataPort() int {
	if s.data == nil {
		return 0
	}
	return s.data.Port()
}

func (s *SDK) SetDataTimeout(d time.Duration) {
	if d <= 0 {
		d = transport.DefaultDataTimeout
	}
	s.cfg.DataTimeout = d
	if s.data != nil {
		s.data.SetTimeout(d)
	}
}

func (s *SDK) SetCommandTimeout(d time.Duration) {
	if d <= 0 {
		d = command.DefaultTimeout
	}
	s.cfg.CommandTimeout = d
	if s.cmd != nil {
		s.cmd.SetTimeout(d)
	}
}

func (s *SDK) SetDataBufferSize(n int) {
	if n <= 0 {
		n = transport.DefaultBufferSize
	}
	s.cfg.BufferSize = n
	if s.data != nil {
		s.data.SetBufferSize(n)
	}
}

// LastDataError is the kind of the last Receive or ProcessPacket failure.
func (s *SDK) LastDataError() errclass.Kind { return s.lastData }

// LastServerError is the kind of the last command failure.
func (s *SDK) LastServerError() errclass.Kind {
	if s.cmd != nil && s.lastCmd == errclass.None {
		return s.cmd.LastError()
	}
	return s.lastCmd
}

// LastDeviceError is the controller error of the last exchange, or nil.
func (s *SDK) LastDeviceError() *command.DeviceError {
	if s.cmd == nil {
		return nil
	}
	return s.cmd.LastDeviceError()
}

func (s *SDK) Close() error {
	var first error
	if s.cmd != nil {
		first = s.cmd.Close()
	}
	if s.data != nil {
		if err := s.data.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
