package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

// Event is one parsed frame together with the controller messages collected
// since the previous frame.
type Event struct {
	Received time.Time
	Frame    *protocol.Frame
	Raw      []byte
	Messages []command.Message
}

// Stats counts the events a hub handled.
type Stats struct {
	Published   uint64
	Dropped     uint64
	Subscribers int
}

type subscriber struct {
	ch      chan Event
	dropped uint64
}

type Hub struct {
	broadcast  chan Event
	register   chan *subscriber
	unregister chan chan Event
	done       chan struct{}
	subs       map[chan Event]*subscriber
	clientBuf  int

	published   atomic.Uint64
	dropped     atomic.Uint64
	subscribers atomic.Int64
	onDrop      func(dropped uint64)
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan Event, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

// WithDropHandler is called from Run each time a subscriber misses an
// event, with the number that subscriber has missed so far.
func WithDropHandler(fn func(dropped uint64)) Option {
	return func(h *Hub) {
		h.onDrop = fn
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan Event, 64),
		register:   make(chan *subscriber),
		unregister: make(chan chan Event),
		done:       make(chan struct{}),
		subs:       make(map[chan Event]*subscriber),
		clientBuf:  16,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run fans events out until ctx is done. A subscriber whose buffer is full
// misses the event; tracking data is only useful when fresh.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for ch := range h.subs {
				close(ch)
			}
			h.subs = map[chan Event]*subscriber{}
			h.subscribers.Store(0)
			return
		case sub := <-h.register:
			h.subs[sub.ch] = sub
			h.subscribers.Add(1)
		case ch := <-h.unregister:
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				h.subscribers.Add(-1)
				close(ch)
			}
		case ev := <-h.broadcast:
			h.published.Add(1)
			for _, sub := range h.subs {
				select {
				case sub.ch <- ev:
				default:
					sub.dropped++
					h.dropped.Add(1)
					if h.onDrop != nil {
						h.onDrop(sub.dropped)
					}
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan Event {
	return h.SubscribeWithBuffer(h.clientBuf)
}

// SubscribeWithBuffer returns a closed channel once Run has stopped.
func (h *Hub) SubscribeWithBuffer(size int) chan Event {
	if size <= 0 {
		size = h.clientBuf
	}
	sub := &subscriber{ch: make(chan Event, size)}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.ch)
	}
	return sub.ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

func (h *Hub) Publish(ev Event) {
	h.broadcast <- ev
}

// Stats may be called while Run is active.
func (h *Hub) Stats() Stats {
	return Stats{
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
		Subscribers: int(h.subscribers.Load()),
	}
}
