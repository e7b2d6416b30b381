// Package foxglove serves tracking frames to Foxglove Studio over its
// WebSocket protocol.
package foxglove

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ar-tracking/DTrackSDK/pkg/engine"
)

type Server struct {
	cfg     Config
	hub     *engine.Hub
	logger  *slog.Logger
	session string
	clients map[*client]struct{}
	mu      sync.RWMutex
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(cfg Config, hub *engine.Hub, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg.withDefaults(),
		hub:     hub,
		logger:  slog.New(slog.DiscardHandler),
		session: uuid.NewString(),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	httpServer := &http.Server{
		Addr:              s.cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info("foxglove bridge listening", "addr", s.cfg.WSAddr, "session", s.session)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeClients()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(conn, r.RemoteAddr, s.supportedChannels(), s.cfg.SendBuf, s.logger)
	if err := s.greet(c); err != nil {
		s.logger.Debug("foxglove handshake failed", "remote", r.RemoteAddr, "err", err)
		c.close()
		return
	}
	s.addClient(c)
	s.logger.Debug("foxglove client connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop()

	c.close()
	s.removeClient(c)
	s.logger.Debug("foxglove client disconnected", "remote", r.RemoteAddr)
}

// greet announces the session and every channel a client may subscribe to.
func (s *Server) greet(c *client) error {
	if err := c.writeJSON(s.serverInfo()); err != nil {
		return err
	}
	return c.writeJSON(s.advertise())
}

func (s *Server) supportedChannels() map[uint64]struct{} {
	return map[uint64]struct{}{
		FrameChannelID:     {},
		TransformChannelID: {},
		MarkerChannelID:    {},
		LogChannelID:       {},
	}
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		SessionID:          s.session,
	}
}

func (s *Server) advertise() AdvertiseMsg {
	channel := func(id uint64, topic, schemaName, schema string) Channel {
		return Channel{
			ID:             id,
			Topic:          topic,
			Encoding:       "json",
			SchemaName:     schemaName,
			SchemaEncoding: "jsonschema",
			Schema:         schema,
		}
	}
	return AdvertiseMsg{Op: OpAdvertise, Channels: []Channel{
		channel(FrameChannelID, s.cfg.FrameTopic, "dtrack.Frame", frameSchema),
		channel(TransformChannelID, s.cfg.TransformTopic, "foxglove.FrameTransforms", transformsSchema),
		channel(MarkerChannelID, s.cfg.MarkerTopic, "visualization_msgs/MarkerArray", markerArraySchema),
		channel(LogChannelID, s.cfg.LogTopic, "foxglove.Log", logSchema),
	}}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.broadcastEvent(ev)
		}
	}
}

func (s *Server) broadcastEvent(ev engine.Event) {
	ts := ev.Received
	if ts.IsZero() {
		ts = time.Now()
	}

	for _, msg := range ev.Messages {
		s.publishJSONToChannel(LogChannelID, ts, s.logFromMessage(msg, ts))
		if msg.Status == "ERROR" {
			s.broadcastStatus(StatusError, msg.String())
		}
	}
	if ev.Frame == nil {
		return
	}
	s.publishJSONToChannel(FrameChannelID, ts, ev.Frame)
	if tf, ok := s.transformsFromFrame(ev.Frame, ts); ok {
		s.publishJSONToChannel(TransformChannelID, ts, tf)
	}
	if markers, ok := s.markersFromFrame(ev.Frame, ts); ok {
		s.publishJSONToChannel(MarkerChannelID, ts, markers)
	}
}

func (s *Server) publishJSONToChannel(channelID uint64, ts time.Time, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Debug("cannot encode message", "channel", channelID, "err", err)
		return
	}

	logTime := uint64(ts.UnixNano())
	for _, c := range s.snapshotClients() {
		c.publish(channelID, logTime, payload)
	}
}

func (s *Server) broadcastStatus(level int, message string) {
	data, err := json.Marshal(StatusMsg{Op: OpStatus, Level: level, Message: message})
	if err != nil {
		return
	}
	for _, c := range s.snapshotClients() {
		c.trySend(outgoing{kind: websocket.TextMessage, data: data})
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) closeClients() {
	for _, c := range s.snapshotClients() {
		c.close()
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}
