package sensor

import (
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/physic"
)

// Kind tags a Reading.
type Kind int

const (
	// Invalid means no measurement is available yet.
	Invalid Kind = iota
	// Value is a valid measurement in milli-Celsius.
	Value
	// Error is any failure to obtain or validate a measurement.
	Error
)

func (k Kind) String() string {
	switch k {
	case Value:
		return "value"
	case Error:
		return "error"
	default:
		return "invalid"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "value":
		*k = Value
	case "error":
		*k = Error
	case "invalid":
		*k = Invalid
	default:
		return fmt.Errorf("unknown reading kind %q", b)
	}
	return nil
}

// Rated range of the DS18B20, in milli-Celsius.
const (
	MinMilliCelsius = -55000
	MaxMilliCelsius = 125000
)

// Reading is the outcome of one attempt to sample a sensor. Only the fields
// belonging to Kind are meaningful; the zero value is an Invalid reading.
// Readings are comparable with ==.
type Reading struct {
	Kind         Kind   `json:"kind"`
	MilliCelsius int    `json:"milli_celsius,omitempty"`
	Message      string `json:"message,omitempty"`
}

// NewValue returns a Value reading, or an Error reading when mc lies outside
// the rated range.
func NewValue(mc int) Reading {
	if mc < MinMilliCelsius || mc > MaxMilliCelsius {
		return NewError("temperature out of range value=" + strconv.Itoa(mc))
	}
	return Reading{Kind: Value, MilliCelsius: mc}
}

// NewError returns an Error reading carrying a diagnostic message. A message
// that would read back as a value or as the invalid marker once persisted
// (empty, "invalid" or an integer) gets an "error=" prefix.
func NewError(msg string) Reading {
	if msg == "" || msg == "invalid" || isInteger(msg) {
		msg = "error=" + msg
	}
	return Reading{Kind: Error, Message: msg}
}

// isInteger reports whether s is an optionally signed run of decimal digits.
func isInteger(s string) bool {
	if s != "" && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Temperature converts a Value reading to a physic.Temperature. ok is false
// for any other kind.
func (r Reading) Temperature() (t physic.Temperature, ok bool) {
	if r.Kind != Value {
		return 0, false
	}
	return physic.ZeroCelsius + physic.Temperature(r.MilliCelsius)*physic.MilliCelsius, true
}

// Payload is the text persisted for the reading: the milli-Celsius integer
// for values, the diagnostic for errors. Error diagnostics never look like an
// integer or "invalid", see NewError.
func (r Reading) Payload() string {
	switch r.Kind {
	case Value:
		return strconv.Itoa(r.MilliCelsius)
	case Error:
		return r.Message
	default:
		return "invalid"
	}
}

func (r Reading) String() string {
	switch r.Kind {
	case Value:
		t, _ := r.Temperature()
		return t.String()
	case Error:
		return "error: " + r.Message
	default:
		return "invalid"
	}
}

// Source produces one reading for a sensor id. Implementations never fail:
// every problem is returned as an Error reading. Read may block on device I/O.
type Source interface {
	Read(id string) Reading
}
