package protocol_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

func collect(t *testing.T, input string) []protocol.Token {
	t.Helper()
	tok := protocol.NewTokenizer([]byte(input))
	var out []protocol.Token
	for {
		next, err := tok.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, next)
	}
}

func TestTokenizerAtomsAndGroups(t *testing.T) {
	toks := collect(t, "6d 1[0 0.99]\r\n[ 1 2  3 ][]fr\t7")
	require.Len(t, toks, 7)

	assert.Equal(t, protocol.Atom, toks[0].Kind)
	assert.Equal(t, "6d", toks[0].Text)
	assert.Equal(t, "1", toks[1].Text)
	assert.Equal(t, protocol.Group, toks[2].Kind)
	assert.Equal(t, []string{"0", "0.99"}, toks[2].Values)
	assert.Equal(t, []string{"1", "2", "3"}, toks[3].Values)
	assert.Equal(t, protocol.Group, toks[4].Kind)
	assert.Empty(t, toks[4].Values)
	assert.Equal(t, "fr", toks[5].Text)
	assert.Equal(t, "7", toks[6].Text)
}

func TestTokenizerStopsAtNUL(t *testing.T) {
	toks := collect(t, "fr 1\x00garbage [")
	require.Len(t, toks, 2)
}

func TestTokenizerPeek(t *testing.T) {
	tok := protocol.NewTokenizer([]byte("a [b]"))
	peeked, err := tok.Peek()
	require.NoError(t, err)
	assert.Equal(t, "a", peeked.Text)
	assert.Equal(t, 0, tok.Offset())

	next, err := tok.Next()
	require.NoError(t, err)
	assert.Equal(t, peeked, next)

	group, err := tok.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, group.Offset)
}

func TestTokenizerErrors(t *testing.T) {
	for name, input := range map[string]string{
		"unclosed": "6d 1 [0 0.9",
		"nested":   "[1 [2]]",
		"stray":    "fr 1 ]",
	} {
		t.Run(name, func(t *testing.T) {
			tok := protocol.NewTokenizer([]byte(input))
			var err error
			for err == nil {
				_, err = tok.Next()
			}
			require.NotErrorIs(t, err, io.EOF)
			assert.ErrorIs(t, err, errclass.ErrParse)
			var perr *protocol.ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestNumberConversions(t *testing.T) {
	n, err := protocol.ParseInt("0x1f")
	require.NoError(t, err)
	assert.Equal(t, 31, n)

	n, err = protocol.ParseInt("-12")
	require.NoError(t, err)
	assert.Equal(t, -12, n)

	_, err = protocol.ParseInt("0.5")
	assert.Error(t, err)

	u, err := protocol.ParseUint32("4294967295")
	require.NoError(t, err)
	assert.Equal(t, uint32(4294967295), u)

	v, err := protocol.ParseFloat("1.5e3")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, v)
}
