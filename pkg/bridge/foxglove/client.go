package foxglove

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

type outgoing struct {
	kind int
	data []byte
}

// control is any text message a client sends; only the fields of its op are
// set.
type control struct {
	Op              string         `json:"op"`
	Subscriptions   []Subscription `json:"subscriptions"`
	SubscriptionIDs []uint32       `json:"subscriptionIds"`
}

type client struct {
	conn     *websocket.Conn
	remote   string
	channels map[uint64]struct{}
	logger   *slog.Logger

	mu     sync.RWMutex
	send   chan outgoing
	subs   map[uint32]uint64
	closed bool
}

func newClient(conn *websocket.Conn, remote string, channels map[uint64]struct{}, sendBuf int, logger *slog.Logger) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		conn:     conn,
		remote:   remote,
		channels: channels,
		logger:   logger,
		send:     make(chan outgoing, sendBuf),
		subs:     make(map[uint32]uint64),
	}
}

// readLoop handles subscriptions until the connection fails.
func (c *client) readLoop() {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg control
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignoring malformed client message", "remote", c.remote, "err", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg control) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Op {
	case OpSubscribe:
		for _, sub := range msg.Subscriptions {
			if _, ok := c.channels[sub.ChannelID]; !ok {
				c.logger.Debug("subscribe to unknown channel", "remote", c.remote, "channel", sub.ChannelID)
				continue
			}
			c.subs[sub.ID] = sub.ChannelID
		}
	case OpUnsubscribe:
		for _, id := range msg.SubscriptionIDs {
			delete(c.subs, id)
		}
	default:
		c.logger.Debug("unsupported client op", "remote", c.remote, "op", msg.Op)
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
			c.close()
			return
		}
	}
}

// writeJSON sends v directly, before the write loop runs.
func (c *client) writeJSON(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// trySend drops msg when the client is slow or gone.
func (c *client) trySend(msg outgoing) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// publish frames payload once per subscription of channelID.
func (c *client) publish(channelID uint64, logTime uint64, payload []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	for id, ch := range c.subs {
		if ch != channelID {
			continue
		}
		select {
		case c.send <- outgoing{kind: websocket.BinaryMessage, data: EncodeMessageData(id, logTime, payload)}:
		default:
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
