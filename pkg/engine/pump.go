package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

// Source is the receive side of an sdk.SDK.
type Source interface {
	Receive() error
	Frame() *protocol.Frame
	Raw() []byte
	Messages() []command.Message
}

// MessageSource is implemented by sources that can poll the controller for
// event messages.
type MessageSource interface {
	IsCommandInterfaceValid() bool
	GetMessage() (command.Message, bool, error)
}

type PumpOption func(*pump)

type pump struct {
	logger    *slog.Logger
	pollEvery time.Duration
	onMessage func(command.Message)
	backlog   int
	now       func() time.Time
}

// DefaultMessageBacklog bounds the messages held while no frame arrives.
const DefaultMessageBacklog = 256

func WithPumpLogger(logger *slog.Logger) PumpOption {
	return func(p *pump) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMessagePoll polls the controller for event messages every interval
// when the source supports it.
func WithMessagePoll(interval time.Duration) PumpOption {
	return func(p *pump) {
		p.pollEvery = interval
	}
}

// WithMessageHandler is called for every controller message as soon as it
// is collected.
func WithMessageHandler(fn func(command.Message)) PumpOption {
	return func(p *pump) {
		p.onMessage = fn
	}
}

// WithMessageBacklog keeps at most n messages waiting for the next frame;
// the oldest are dropped first.
func WithMessageBacklog(n int) PumpOption {
	return func(p *pump) {
		if n > 0 {
			p.backlog = n
		}
	}
}

// Pump receives frames from src and publishes them on hub until ctx is done
// or the source fails with a network error. Timeouts and malformed datagrams
// are skipped.
func Pump(ctx context.Context, src Source, hub *Hub, opts ...PumpOption) error {
	p := &pump{
		logger:  slog.New(slog.DiscardHandler),
		backlog: DefaultMessageBacklog,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	poller, _ := src.(MessageSource)
	var lastPoll time.Time

	var pending []command.Message
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		err := src.Receive()
		fresh := src.Messages()
		if poller != nil && p.pollEvery > 0 && p.now().Sub(lastPoll) >= p.pollEvery {
			lastPoll = p.now()
			fresh = append(fresh, p.poll(poller)...)
		}
		if p.onMessage != nil {
			for _, msg := range fresh {
				p.onMessage(msg)
			}
		}
		pending = append(pending, fresh...)
		if over := len(pending) - p.backlog; over > 0 {
			p.logger.Warn("message backlog full, dropping oldest", "dropped", over)
			pending = append([]command.Message(nil), pending[over:]...)
		}

		switch errclass.Of(err) {
		case errclass.None:
		case errclass.Timeout:
			p.logger.Debug("no tracking data")
			continue
		case errclass.Parse:
			p.logger.Warn("malformed datagram", "err", err)
			continue
		default:
			return err
		}

		ev := Event{
			Received: p.now(),
			Frame:    src.Frame(),
			Raw:      src.Raw(),
			Messages: pending,
		}
		pending = nil

		select {
		case hub.broadcast <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *pump) poll(src MessageSource) []command.Message {
	if !src.IsCommandInterfaceValid() {
		return nil
	}
	var out []command.Message
	for {
		msg, ok, err := src.GetMessage()
		if err != nil {
			p.logger.Warn("poll controller messages", "err", err)
			return out
		}
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}
