package protocol

import (
	"fmt"
	"io"
	"strconv"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
)

type TokenKind int

const (
	Atom TokenKind = iota + 1
	Group
)

// Token is either a bare atom or a bracketed group of atoms.
type Token struct {
	Kind   TokenKind
	Text   string
	Values []string
	Offset int
}

// ParseError reports a malformed datagram. The whole datagram is rejected.
type ParseError struct {
	Offset  int
	Keyword string
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Keyword == "" {
		return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Reason)
	}
	return fmt.Sprintf("parse error at offset %d in %q: %s", e.Offset, e.Keyword, e.Reason)
}

func (e *ParseError) Unwrap() error { return errclass.ErrParse }

// Tokenizer splits one datagram into atoms and groups. A NUL byte ends the
// datagram.
type Tokenizer struct {
	buf    []byte
	pos    int
	peeked *Token
}

func NewTokenizer(buf []byte) *Tokenizer {
	for i, c := range buf {
		if c == 0 {
			buf = buf[:i]
			break
		}
	}
	return &Tokenizer{buf: buf}
}

// Next returns the next token or io.EOF at the end of the datagram.
func (t *Tokenizer) Next() (Token, error) {
	if t.peeked != nil {
		tok := *t.peeked
		t.peeked = nil
		return tok, nil
	}
	return t.scan()
}

// Peek returns the next token without consuming it.
func (t *Tokenizer) Peek() (Token, error) {
	if t.peeked != nil {
		return *t.peeked, nil
	}
	tok, err := t.scan()
	if err != nil {
		return Token{}, err
	}
	t.peeked = &tok
	return tok, nil
}

// Offset is the position of the next unread byte.
func (t *Tokenizer) Offset() int {
	if t.peeked != nil {
		return t.peeked.Offset
	}
	return t.pos
}

func (t *Tokenizer) scan() (Token, error) {
	t.skipSpace()
	if t.pos >= len(t.buf) {
		return Token{}, io.EOF
	}

	start := t.pos
	switch t.buf[t.pos] {
	case '[':
		t.pos++
		values := []string{}
		for {
			t.skipSpace()
			if t.pos >= len(t.buf) {
				return Token{}, &ParseError{Offset: start, Reason: "unclosed group"}
			}
			switch t.buf[t.pos] {
			case ']':
				t.pos++
				return Token{Kind: Group, Values: values, Offset: start}, nil
			case '[':
				return Token{}, &ParseError{Offset: t.pos, Reason: "nested group"}
			}
			values = append(values, t.word())
		}
	case ']':
		return Token{}, &ParseError{Offset: start, Reason: "unexpected ']'"}
	default:
		return Token{Kind: Atom, Text: t.word(), Offset: start}, nil
	}
}

func (t *Tokenizer) word() string {
	start := t.pos
	for t.pos < len(t.buf) {
		c := t.buf[t.pos]
		if isSpace(c) || c == '[' || c == ']' {
			break
		}
		t.pos++
	}
	return string(t.buf[start:t.pos])
}

func (t *Tokenizer) skipSpace() {
	for t.pos < len(t.buf) && isSpace(t.buf[t.pos]) {
		t.pos++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}

// ParseInt converts an integer atom using C base prefixes (0x hex, leading 0 octal).
func ParseInt(s string) (int, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func ParseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
