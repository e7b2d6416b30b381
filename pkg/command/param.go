package command

import (
	"strings"
	"unicode"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
)

const setPrefix = "dtrack2 set "

// SetParameter sets "<category> <name>" to value.
func (c *Channel) SetParameter(category, name, value string) error {
	return c.SetParam(category + " " + name + " " + value)
}

// SetParam sends "dtrack2 set <parameter>", where parameter holds category,
// name and value.
func (c *Channel) SetParam(parameter string) error {
	return c.Command(setPrefix + parameter)
}

func (c *Channel) GetParameter(category, name string) (string, error) {
	return c.GetParam(category + " " + name)
}

// GetParam queries parameter ("<category> <name>") and returns its value
// exactly as sent, inner spaces included.
func (c *Channel) GetParam(parameter string) (string, error) {
	reply, err := c.Exchange("dtrack2 get " + parameter)
	if err != nil {
		return "", err
	}
	rest, ok := strings.CutPrefix(reply, setPrefix)
	if !ok {
		c.lastErr = errclass.Parse
		return "", malformed("parameter reply", reply)
	}
	value, ok := MatchParameter(rest, parameter)
	if !ok {
		c.lastErr = errclass.Parse
		return "", malformed("parameter reply", reply)
	}
	return value, nil
}

// MatchParameter checks that s starts with the words of parameter and returns
// what follows. Runs of whitespace compare equal and numeric words compare
// without leading zeros, so "cam  exp 01" matches "cam exp 1" but "cam exp 10"
// does not.
func MatchParameter(s, parameter string) (string, bool) {
	want := strings.Fields(parameter)
	got, rest := splitWords(s, len(want))
	if len(got) != len(want) {
		return "", false
	}
	for i := range want {
		if normalizeWord(got[i]) != normalizeWord(want[i]) {
			return "", false
		}
	}
	return strings.TrimLeftFunc(rest, unicode.IsSpace), true
}

func normalizeWord(w string) string {
	for _, r := range w {
		if r < '0' || r > '9' {
			return w
		}
	}
	trimmed := strings.TrimLeft(w, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
