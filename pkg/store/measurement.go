package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/temprec/pkg/sensor"
)

// TimeLayout is the timestamp format of persisted and rendered lines.
const TimeLayout = "2006-01-02T15:04:05Z07:00"

// Measurement is a timestamped reading. It is never modified once created.
type Measurement struct {
	Time    time.Time      `json:"timestamp"`
	Reading sensor.Reading `json:"reading"`
}

var (
	numericPayload = regexp.MustCompile(`^[+-]?[0-9]+$`)
	lineBreaks     = strings.NewReplacer("\r", " ", "\n", " ")
)

// Line renders m as "<timestamp>,<payload>" without a line terminator.
func (m Measurement) Line() string {
	return m.Time.UTC().Format(TimeLayout) + "," + lineBreaks.Replace(m.Reading.Payload())
}

// ParseLine is the inverse of Line. Numeric payloads become values, or error
// readings when outside the rated range; the literal "invalid" becomes an
// Invalid reading, which callers are expected to drop; any other payload is an
// error reading.
func ParseLine(line string) (Measurement, error) {
	ts, payload, ok := strings.Cut(line, ",")
	if !ok {
		return Measurement{}, fmt.Errorf("missing separator")
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return Measurement{}, fmt.Errorf("invalid time: %w", err)
	}
	m := Measurement{Time: t.UTC()}
	switch {
	case numericPayload.MatchString(payload):
		v, err := strconv.Atoi(payload)
		if err != nil {
			return Measurement{}, fmt.Errorf("invalid value: %w", err)
		}
		m.Reading = sensor.NewValue(v)
	case payload == "invalid":
		m.Reading = sensor.Reading{}
	default:
		m.Reading = sensor.NewError(payload)
	}
	return m, nil
}

// formatCSV renders one line per measurement, joined by newlines.
func formatCSV(ms []Measurement) string {
	var b strings.Builder
	for i, m := range ms {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Line())
	}
	return b.String()
}
