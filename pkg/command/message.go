package command

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
)

const (
	errPrefix = "dtrack2 err "
	msgPrefix = "dtrack2 msg "
)

// Message is an event log entry pushed by the controller.
type Message struct {
	Origin  string `json:"origin"`
	Status  string `json:"status"`
	FrameNr uint32 `json:"frame"`
	ErrorID uint32 `json:"error_id"`
	Text    string `json:"text"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s frame %d 0x%08x: %s", m.Origin, m.Status, m.FrameNr, m.ErrorID, m.Text)
}

// ParseMessage decodes `dtrack2 msg <origin> <status> <frame> <errorid> "<text>"`.
func ParseMessage(line string) (Message, error) {
	rest, ok := strings.CutPrefix(line, msgPrefix)
	if !ok {
		return Message{}, malformed("message", line)
	}
	words, rest := splitWords(rest, 4)
	if len(words) < 4 {
		return Message{}, malformed("message", line)
	}
	frame, err := strconv.ParseUint(words[2], 0, 32)
	if err != nil {
		return Message{}, malformed("message", line)
	}
	errID, err := strconv.ParseUint(words[3], 0, 32)
	if err != nil {
		return Message{}, malformed("message", line)
	}
	text, ok := quotedText(rest)
	if !ok {
		return Message{}, malformed("message", line)
	}
	return Message{
		Origin:  words[0],
		Status:  words[1],
		FrameNr: uint32(frame),
		ErrorID: uint32(errID),
		Text:    text,
	}, nil
}

func parseDeviceError(line string) (*DeviceError, error) {
	rest := strings.TrimPrefix(line, errPrefix)
	words, rest := splitWords(rest, 1)
	if len(words) < 1 {
		return nil, malformed("error reply", line)
	}
	code, err := strconv.ParseInt(words[0], 0, 64)
	if err != nil {
		return nil, malformed("error reply", line)
	}
	text, ok := quotedText(rest)
	if !ok {
		return nil, malformed("error reply", line)
	}
	return &DeviceError{Code: int(code), Text: text}, nil
}

func malformed(what, line string) error {
	return errclass.New(errclass.Parse, fmt.Sprintf("command: malformed %s %q", what, line))
}

// splitWords cuts up to n whitespace separated words off the front of s.
func splitWords(s string, n int) ([]string, string) {
	var words []string
	for len(words) < n {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			break
		}
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			end = len(s)
		}
		words = append(words, s[:end])
		s = s[end:]
	}
	return words, s
}

// quotedText returns the text between the first pair of double quotes.
func quotedText(s string) (string, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if !strings.HasPrefix(s, `"`) {
		return "", false
	}
	end := strings.IndexByte(s[1:], '"')
	if end < 0 {
		return "", false
	}
	return s[1 : end+1], true
}

// FetchMessage asks the controller for its next event message. ok is false
// when the controller has none pending.
func (c *Channel) FetchMessage() (msg Message, ok bool, err error) {
	reply, err := c.Exchange(CmdGetMsg)
	if err != nil {
		return Message{}, false, err
	}
	if !strings.HasPrefix(reply, msgPrefix) {
		return Message{}, false, nil
	}
	msg, err = ParseMessage(reply)
	if err != nil {
		c.lastErr = errclass.Parse
		return Message{}, false, err
	}
	return msg, true, nil
}

// Messages drains the queue of event messages received during exchanges.
func (c *Channel) Messages() []Message {
	out := c.queue
	c.queue = nil
	return out
}

func (c *Channel) PendingMessages() int { return len(c.queue) }
