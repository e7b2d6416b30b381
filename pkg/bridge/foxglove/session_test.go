package foxglove_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ar-tracking/DTrackSDK/pkg/bridge/foxglove"
	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/engine"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

type foxgloveSession struct {
	hub      *engine.Hub
	conn     *websocket.Conn
	channels map[string]foxglove.Channel
}

func startFoxgloveSession(t *testing.T, cfg foxglove.Config) *foxgloveSession {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen free port: %v", err)
	}
	cfg.WSAddr = ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	hub := engine.NewHub()
	go hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- foxglove.NewServer(cfg, hub).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("server stopped with error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Errorf("server did not stop")
		}
	})

	conn := dialFoxglove(t, cfg.WSAddr)

	var info foxglove.ServerInfoMsg
	readJSON(t, conn, &info)
	if info.Op != foxglove.OpServerInfo || info.SessionID == "" {
		t.Fatalf("unexpected serverInfo: %+v", info)
	}
	var adv foxglove.AdvertiseMsg
	readJSON(t, conn, &adv)
	if adv.Op != foxglove.OpAdvertise {
		t.Fatalf("unexpected advertise: %+v", adv)
	}

	channels := make(map[string]foxglove.Channel, len(adv.Channels))
	for _, ch := range adv.Channels {
		channels[ch.Topic] = ch
	}
	return &foxgloveSession{hub: hub, conn: conn, channels: channels}
}

// dialFoxglove retries until the server accepts connections.
func dialFoxglove(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
	dialer := websocket.Dialer{Subprotocols: []string{foxglove.Subprotocol}}
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err := dialer.Dial(u.String(), nil)
		if err == nil {
			t.Cleanup(func() { _ = conn.Close() })
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", u.String(), err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	kind, raw, err := readWSMessage(conn)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("expected text message, got type %d", kind)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func readWSMessage(conn *websocket.Conn) (int, []byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	_ = conn.SetReadDeadline(time.Time{})
	return msgType, raw, err
}

func subscribeChannel(t *testing.T, conn *websocket.Conn, subID uint32, channelID uint64) {
	t.Helper()
	msg := foxglove.SubscribeMsg{
		Op:            foxglove.OpSubscribe,
		Subscriptions: []foxglove.Subscription{{ID: subID, ChannelID: channelID}},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("subscribe channel %d: %v", channelID, err)
	}
}

// publishRepeatedly keeps publishing ev until the test ends, since the
// server registers subscriptions asynchronously.
func publishRepeatedly(t *testing.T, hub *engine.Hub, ev engine.Event) {
	t.Helper()
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			hub.Publish(ev)
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		<-stopped
	})
}

func readBinaryPayloadForSubID(t *testing.T, conn *websocket.Conn, subID uint32) []byte {
	t.Helper()
	for i := 0; i < 40; i++ {
		msgType, frame, err := readWSMessage(conn)
		if err != nil {
			t.Fatalf("read messageData frame: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(frame) < 13 || frame[0] != foxglove.BinaryOpMessageData {
			continue
		}
		if binary.LittleEndian.Uint32(frame[1:5]) != subID {
			continue
		}
		return append([]byte(nil), frame[13:]...)
	}
	t.Fatalf("did not receive messageData for subscription id %d", subID)
	return nil
}

func TestFoxgloveAdvertiseChannels(t *testing.T) {
	cfg := foxglove.DefaultConfig()
	s := startFoxgloveSession(t, cfg)

	for _, topic := range []string{cfg.FrameTopic, cfg.TransformTopic, cfg.MarkerTopic, cfg.LogTopic} {
		if _, ok := s.channels[topic]; !ok {
			t.Fatalf("missing advertised topic: %s", topic)
		}
	}
	if len(s.channels) != 4 {
		t.Fatalf("expected 4 channels, got %d", len(s.channels))
	}
	if ch := s.channels[cfg.LogTopic]; ch.SchemaName != "foxglove.Log" {
		t.Fatalf("unexpected log schema: %s", ch.SchemaName)
	}
}

func TestFoxglovePublishesControllerMessages(t *testing.T) {
	cfg := foxglove.DefaultConfig()
	s := startFoxgloveSession(t, cfg)
	subscribeChannel(t, s.conn, 11, s.channels[cfg.LogTopic].ID)

	publishRepeatedly(t, s.hub, engine.Event{
		Received: time.Unix(123, 456),
		Messages: []command.Message{{Origin: "atc", Status: "WARNING", FrameNr: 5, ErrorID: 1, Text: "camera warm up"}},
	})

	payload := readBinaryPayloadForSubID(t, s.conn, 11)
	var rec foxglove.Log
	if err := json.Unmarshal(payload, &rec); err != nil {
		t.Fatalf("decode log payload: %v", err)
	}
	if rec.Level != foxglove.LogLevelWarning {
		t.Fatalf("unexpected log level: %d", rec.Level)
	}
	if rec.Message != "[frame 5, 0x00000001] camera warm up" {
		t.Fatalf("unexpected log message: %s", rec.Message)
	}
	if rec.Name != cfg.LogName+"/atc" {
		t.Fatalf("unexpected log name: %s", rec.Name)
	}
}

func TestFoxgloveSendsStatusForControllerErrors(t *testing.T) {
	s := startFoxgloveSession(t, foxglove.DefaultConfig())

	publishRepeatedly(t, s.hub, engine.Event{
		Messages: []command.Message{{Origin: "dtrack2", Status: "ERROR", Text: "sync lost"}},
	})

	for i := 0; i < 40; i++ {
		msgType, raw, err := readWSMessage(s.conn)
		if err != nil {
			t.Fatalf("read status: %v", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var status foxglove.StatusMsg
		if err := json.Unmarshal(raw, &status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Op != foxglove.OpStatus || status.Level != foxglove.StatusError {
			t.Fatalf("unexpected status: %+v", status)
		}
		return
	}
	t.Fatalf("no status message received")
}

func TestFoxglovePublishesFrameAndTransforms(t *testing.T) {
	cfg := foxglove.DefaultConfig()
	s := startFoxgloveSession(t, cfg)
	subscribeChannel(t, s.conn, 21, s.channels[cfg.FrameTopic].ID)
	subscribeChannel(t, s.conn, 22, s.channels[cfg.TransformTopic].ID)

	frame, err := protocol.ParseString("fr 314\r\n6d 1 [4 1][100 200 300][1 0 0 0 1 0 0 0 1]\r\n")
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	publishRepeatedly(t, s.hub, engine.Event{Received: time.Unix(777, 999), Frame: frame})

	var got struct {
		Frame  uint32 `json:"frame"`
		Bodies []struct {
			ID int `json:"id"`
		} `json:"bodies"`
	}
	if err := json.Unmarshal(readBinaryPayloadForSubID(t, s.conn, 21), &got); err != nil {
		t.Fatalf("decode frame payload: %v", err)
	}
	if got.Frame != 314 || len(got.Bodies) != 1 || got.Bodies[0].ID != 4 {
		t.Fatalf("unexpected frame payload: %+v", got)
	}

	var tf foxglove.FrameTransforms
	if err := json.Unmarshal(readBinaryPayloadForSubID(t, s.conn, 22), &tf); err != nil {
		t.Fatalf("decode transform payload: %v", err)
	}
	if len(tf.Transforms) != 1 {
		t.Fatalf("expected one transform, got %d", len(tf.Transforms))
	}
	tr := tf.Transforms[0]
	if tr.ChildFrameID != cfg.FramePrefix+"/body/4" || tr.Rotation.W != 1 {
		t.Fatalf("unexpected transform: %+v", tr)
	}
	if !closeEnough(tr.Translation.X, 0.1) || !closeEnough(tr.Translation.Z, 0.3) {
		t.Fatalf("unexpected translation: %+v", tr.Translation)
	}
}

func closeEnough(got float64, want float64) bool {
	delta := got - want
	if delta < 0 {
		delta = -delta
	}
	return delta < 1e-6
}
