package protocol

import (
	"errors"
	"fmt"
	"io"
)

type recordFunc func(p *parser) error

// records maps line keywords to their decoders.
var records = map[string]recordFunc{
	"fr":    parseFrameCounter,
	"ts":    parseTimestamp,
	"6dcal": parseBodyCalibration,
	"6d":    parseBodies,
	"6dcov": parseBodyCovariance,
	"6df":   parseFlySticksV1,
	"6df2":  parseFlySticks,
	"6dmt":  parseMeaToolsV1,
	"6dmt2": parseMeaTools,
	"6dmtr": parseMeaRefs,
	"3d":    parseMarkers,
	"glcal": parseHandCalibration,
	"gl":    parseHands,
	"6dj":   parseHumans,
	"6di":   parseInertials,
	"st":    parseStatus,
}

// IsKeyword reports whether s starts a record the parser understands.
func IsKeyword(s string) bool {
	_, ok := records[s]
	return ok
}

// Parse decodes one datagram. Records may come in any order and on any number
// of lines. Tokens that do not start a known record are skipped up to the next
// known keyword, so unknown record types are ignored as a whole. Any malformed
// known record rejects the datagram.
func Parse(datagram []byte) (*Frame, error) {
	p := &parser{tok: NewTokenizer(datagram), frame: NewFrame()}
	for {
		tok, err := p.tok.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if tok.Kind != Atom {
			continue
		}
		rec, ok := records[tok.Text]
		if !ok {
			continue
		}
		p.keyword, p.start = tok.Text, tok.Offset
		if err := rec(p); err != nil {
			return nil, err
		}
	}
	if err := p.attachCovariance(); err != nil {
		return nil, err
	}
	return p.frame, nil
}

func ParseString(datagram string) (*Frame, error) {
	return Parse([]byte(datagram))
}

type parser struct {
	tok     *Tokenizer
	frame   *Frame
	keyword string
	start   int
	bodyCov []pendingCovariance
}

type pendingCovariance struct {
	id     int
	offset int
	cov    BodyCovariance
}

func (p *parser) fail(offset int, format string, args ...any) error {
	return &ParseError{Offset: offset, Keyword: p.keyword, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) next() (Token, error) {
	tok, err := p.tok.Next()
	if errors.Is(err, io.EOF) {
		return Token{}, p.fail(p.tok.Offset(), "unexpected end of datagram")
	}
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) && perr.Keyword == "" {
			perr.Keyword = p.keyword
		}
		return Token{}, err
	}
	return tok, nil
}

func (p *parser) atom() (Token, error) {
	tok, err := p.next()
	if err != nil {
		return Token{}, err
	}
	if tok.Kind != Atom {
		return Token{}, p.fail(tok.Offset, "expected value, got group")
	}
	return tok, nil
}

func (p *parser) count() (int, error) {
	tok, err := p.atom()
	if err != nil {
		return 0, err
	}
	n, err := ParseInt(tok.Text)
	if err != nil {
		return 0, p.fail(tok.Offset, "invalid count %q", tok.Text)
	}
	if n < 0 {
		return 0, p.fail(tok.Offset, "negative count %d", n)
	}
	return n, nil
}

func (p *parser) group(size int) (*fields, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Kind != Group {
		return nil, p.fail(tok.Offset, "expected group, got %q", tok.Text)
	}
	if len(tok.Values) < size {
		return nil, p.fail(tok.Offset, "group has %d values, want %d", len(tok.Values), size)
	}
	return &fields{p: p, tok: tok}, nil
}

func (p *parser) location() (Location, error) {
	var loc Location
	g, err := p.group(len(loc))
	if err != nil {
		return loc, err
	}
	g.floats(loc[:])
	return loc, g.err
}

func (p *parser) rotation() (Rotation, error) {
	var rot Rotation
	g, err := p.group(len(rot))
	if err != nil {
		return rot, err
	}
	g.floats(rot[:])
	return rot, g.err
}

func (p *parser) pose() (Location, Rotation, error) {
	loc, err := p.location()
	if err != nil {
		return Location{}, Rotation{}, err
	}
	rot, err := p.rotation()
	if err != nil {
		return Location{}, Rotation{}, err
	}
	return loc, rot, nil
}

func (p *parser) limit(offset int, what string, n int, max int) error {
	if n < 0 {
		return p.fail(offset, "negative %s count %d", what, n)
	}
	if n > max {
		return p.fail(offset, "%s count %d exceeds maximum %d", what, n, max)
	}
	return nil
}

func uniqueIDs[T any](p *parser, items []T, idOf func(T) int) error {
	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		id := idOf(item)
		if _, dup := seen[id]; dup {
			return p.fail(p.start, "duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (p *parser) attachCovariance() error {
	for _, pc := range p.bodyCov {
		idx := -1
		for i := range p.frame.Bodies {
			if p.frame.Bodies[i].ID == pc.id {
				idx = i
				break
			}
		}
		if idx < 0 {
			p.keyword = "6dcov"
			return p.fail(pc.offset, "covariance for unknown body %d", pc.id)
		}
		if p.frame.Bodies[idx].IsTracked() {
			cov := pc.cov
			p.frame.Bodies[idx].Cov = &cov
		}
	}
	return nil
}

// fields reads typed values out of one group. The first conversion error
// sticks and later reads return zero.
type fields struct {
	p    *parser
	tok  Token
	next int
	err  error
}

func (f *fields) value() (string, bool) {
	if f.err != nil {
		return "", false
	}
	if f.next >= len(f.tok.Values) {
		f.err = f.p.fail(f.tok.Offset, "group has %d values, want more", len(f.tok.Values))
		return "", false
	}
	s := f.tok.Values[f.next]
	f.next++
	return s, true
}

func (f *fields) int() int {
	s, ok := f.value()
	if !ok {
		return 0
	}
	n, err := ParseInt(s)
	if err != nil {
		f.err = f.p.fail(f.tok.Offset, "invalid integer %q", s)
		return 0
	}
	return n
}

func (f *fields) float() float64 {
	s, ok := f.value()
	if !ok {
		return 0
	}
	v, err := ParseFloat(s)
	if err != nil {
		f.err = f.p.fail(f.tok.Offset, "invalid number %q", s)
		return 0
	}
	return v
}

func (f *fields) floats(dst []float64) {
	for i := range dst {
		dst[i] = f.float()
	}
}

// bits reads packed button words, 32 buttons per word, least significant bit
// first.
func (f *fields) bits(n int) []bool {
	out := make([]bool, n)
	for w := 0; w*32 < n; w++ {
		word := f.int()
		for b := 0; b < 32 && w*32+b < n; b++ {
			out[w*32+b] = word&(1<<b) != 0
		}
	}
	return out
}

func buttonWords(n int) int {
	return (n + 31) / 32
}
