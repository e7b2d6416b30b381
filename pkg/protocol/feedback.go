package protocol

import (
	"errors"
	"strconv"
	"strings"
)

var ErrStrengthRange = errors.New("feedback strength outside [0, 1]")

// TactileFinger builds the tactile feedback command for one finger.
func TactileFinger(hand, finger int, strength float64) (string, error) {
	if strength < 0 || strength > 1 {
		return "", ErrStrengthRange
	}
	var b strings.Builder
	b.WriteString("tfb 1 ")
	writeTactile(&b, hand, finger, strength)
	return b.String(), nil
}

// TactileHand builds one command setting every finger of a hand, strengths[i]
// going to finger i.
func TactileHand(hand int, strengths []float64) (string, error) {
	var b strings.Builder
	b.WriteString("tfb ")
	b.WriteString(strconv.Itoa(len(strengths)))
	b.WriteByte(' ')
	for i, s := range strengths {
		if s < 0 || s > 1 {
			return "", ErrStrengthRange
		}
		writeTactile(&b, hand, i, s)
	}
	return b.String(), nil
}

func writeTactile(b *strings.Builder, hand, finger int, strength float64) {
	b.WriteByte('[')
	b.WriteString(strconv.Itoa(hand))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(finger))
	b.WriteString(" 1.0 ")
	b.WriteString(strconv.FormatFloat(strength, 'g', -1, 64))
	b.WriteByte(']')
}

// FlyStickBeep builds the command for a beep of durationMs milliseconds at
// frequencyHz. Both are truncated to whole numbers.
func FlyStickBeep(id int, durationMs, frequencyHz float64) string {
	return "ffb 1 [" + strconv.Itoa(id) + " " + strconv.Itoa(int(durationMs)) + " " +
		strconv.Itoa(int(frequencyHz)) + " 0 0][]"
}

func FlyStickVibration(id, pattern int) string {
	return "ffb 1 [" + strconv.Itoa(id) + " 0 0 " + strconv.Itoa(pattern) + " 0][]"
}
