package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/engine"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

// Record is one line of a frame recording.
type Record struct {
	TS       string            `json:"ts"`
	Session  string            `json:"session"`
	Frame    *protocol.Frame   `json:"frame"`
	Raw      string            `json:"raw,omitempty"`
	Messages []command.Message `json:"messages,omitempty"`
}

// Time parses TS.
func (r Record) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.TS)
}

type JSONLWriter struct {
	enc     *json.Encoder
	session string
	raw     bool
}

type WriterOption func(*JSONLWriter)

// WithRaw stores the datagram next to the parsed frame.
func WithRaw(raw bool) WriterOption {
	return func(j *JSONLWriter) {
		j.raw = raw
	}
}

// WithSession overrides the generated session id.
func WithSession(id string) WriterOption {
	return func(j *JSONLWriter) {
		if id != "" {
			j.session = id
		}
	}
}

func NewJSONLWriter(w io.Writer, opts ...WriterOption) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	j := &JSONLWriter{
		enc:     enc,
		session: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *JSONLWriter) Session() string { return j.session }

func (j *JSONLWriter) Write(ev engine.Event) error {
	rec := Record{
		TS:       ev.Received.UTC().Format(time.RFC3339Nano),
		Session:  j.session,
		Frame:    ev.Frame,
		Messages: ev.Messages,
	}
	if j.raw {
		rec.Raw = string(ev.Raw)
	}
	return j.enc.Encode(rec)
}

// Consume writes events until in is closed or ctx is done. Frames that
// cannot be encoded, such as ones carrying NaN, are skipped. Any other write
// error ends the recording.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			err := j.Write(ev)
			var unsupported *json.UnsupportedValueError
			if errors.As(err, &unsupported) {
				continue
			}
			if err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
	}
}

// maxRecordLine bounds one recorded line. A frame of a fully loaded system
// with raw data stays well below it.
const maxRecordLine = 4 << 20

// ReadJSONL calls fn for every record in r.
func ReadJSONL(r io.Reader, fn func(Record) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxRecordLine)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("record %d: %w", line, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	return nil
}
