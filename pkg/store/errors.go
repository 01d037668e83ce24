package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/relvacode/iso8601"
)

// ErrNotFound is returned for an unknown sensor id or ordinal.
var ErrNotFound = errors.New("sensor not found")

// TimeParseError rejects a caller supplied timestamp.
type TimeParseError struct {
	Value string
	Err   error
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("invalid timestamp %q: %v", e.Value, e.Err)
}

func (e *TimeParseError) Unwrap() error { return e.Err }

// PersistAppendError reports a failed append to a sensor log. The sample it
// carried is lost.
type PersistAppendError struct {
	Path string
	Err  error
}

func (e *PersistAppendError) Error() string {
	return fmt.Sprintf("append to %s: %v", e.Path, e.Err)
}

func (e *PersistAppendError) Unwrap() error { return e.Err }

// PersistCompactError reports a failed log rewrite. The store keeps the
// series it had before the removal.
type PersistCompactError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistCompactError) Error() string {
	return fmt.Sprintf("compact %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistCompactError) Unwrap() error { return e.Err }

// ParseTime parses a timestamp as sent by API callers, e.g.
// "2017-03-04T12:00:05Z". The result is in UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := iso8601.ParseString(s)
	if err != nil {
		return time.Time{}, &TimeParseError{Value: s, Err: err}
	}
	return t.UTC(), nil
}
