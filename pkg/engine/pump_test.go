package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/engine"
	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

type step struct {
	counter uint32
	err     error
	msgs    []command.Message
}

type fakeSource struct {
	steps []step
	frame *protocol.Frame
	msgs  []command.Message
}

var errGone = errclass.New(errclass.Network, "receive: socket closed")

func (s *fakeSource) Receive() error {
	if len(s.steps) == 0 {
		return errGone
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	s.msgs = append(s.msgs, st.msgs...)
	if st.err != nil {
		return st.err
	}
	s.frame = &protocol.Frame{Counter: st.counter}
	return nil
}

func (s *fakeSource) Frame() *protocol.Frame { return s.frame }

func (s *fakeSource) Raw() []byte { return nil }

func (s *fakeSource) Messages() []command.Message {
	out := s.msgs
	s.msgs = nil
	return out
}

type pollingSource struct {
	fakeSource
	controller []command.Message
}

func (s *pollingSource) IsCommandInterfaceValid() bool { return true }

func (s *pollingSource) GetMessage() (command.Message, bool, error) {
	if len(s.controller) == 0 {
		return command.Message{}, false, nil
	}
	msg := s.controller[0]
	s.controller = s.controller[1:]
	return msg, true, nil
}

func startHub(t *testing.T) (*engine.Hub, chan engine.Event) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := engine.NewHub()
	go hub.Run(ctx)
	return hub, hub.Subscribe()
}

func next(t *testing.T, ch chan engine.Event) engine.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event published")
	}
	return engine.Event{}
}

func TestPumpSkipsTimeoutsAndBadDatagrams(t *testing.T) {
	hub, events := startHub(t)
	warm := command.Message{Origin: "dtrack2", Status: "WARNING", Text: "warm up"}
	lost := command.Message{Origin: "dtrack2", Status: "ERROR", Text: "sync lost"}
	src := &fakeSource{steps: []step{
		{err: errclass.New(errclass.Timeout, "receive"), msgs: []command.Message{warm}},
		{err: errclass.New(errclass.Parse, "bad datagram")},
		{counter: 1},
		{counter: 2, msgs: []command.Message{lost}},
	}}

	var handled []string
	err := engine.Pump(context.Background(), src, hub,
		engine.WithMessageHandler(func(m command.Message) { handled = append(handled, m.Text) }))
	if !errors.Is(err, errGone) {
		t.Fatalf("expected source error, got %v", err)
	}

	first := next(t, events)
	if first.Frame.Counter != 1 || len(first.Messages) != 1 || first.Messages[0].Text != "warm up" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if first.Received.IsZero() {
		t.Fatalf("event has no receive time")
	}
	second := next(t, events)
	if second.Frame.Counter != 2 || len(second.Messages) != 1 || second.Messages[0].Text != "sync lost" {
		t.Fatalf("unexpected second event: %+v", second)
	}
	if len(handled) != 2 || handled[0] != "warm up" || handled[1] != "sync lost" {
		t.Fatalf("unexpected handled messages: %v", handled)
	}
}

func TestPumpPollsControllerMessages(t *testing.T) {
	hub, events := startHub(t)
	src := &pollingSource{
		fakeSource: fakeSource{steps: []step{{counter: 7}}},
		controller: []command.Message{{Status: "INFO", Text: "a"}, {Status: "INFO", Text: "b"}},
	}

	_ = engine.Pump(context.Background(), src, hub, engine.WithMessagePoll(time.Nanosecond))

	ev := next(t, events)
	if ev.Frame.Counter != 7 {
		t.Fatalf("unexpected frame %d", ev.Frame.Counter)
	}
	if len(ev.Messages) != 2 || ev.Messages[1].Text != "b" {
		t.Fatalf("unexpected messages: %+v", ev.Messages)
	}
}

func TestPumpStopsOnCancel(t *testing.T) {
	hub, _ := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{steps: []step{{counter: 1}}}
	if err := engine.Pump(ctx, src, hub); err != nil {
		t.Fatalf("expected nil after cancel, got %v", err)
	}
	if len(src.steps) != 1 {
		t.Fatalf("source read after cancel")
	}
}

func TestPumpCapsMessagesWhileNoFrameArrives(t *testing.T) {
	hub, events := startHub(t)
	var steps []step
	for i := 0; i < 10; i++ {
		steps = append(steps, step{
			err:  errclass.New(errclass.Timeout, "receive"),
			msgs: []command.Message{{Status: "INFO", FrameNr: uint32(i)}},
		})
	}
	steps = append(steps, step{counter: 3})
	src := &fakeSource{steps: steps}

	_ = engine.Pump(context.Background(), src, hub, engine.WithMessageBacklog(4))

	ev := next(t, events)
	if len(ev.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(ev.Messages))
	}
	if ev.Messages[0].FrameNr != 6 || ev.Messages[3].FrameNr != 9 {
		t.Fatalf("expected the newest messages, got %+v", ev.Messages)
	}
}
