// Package timex provides time helpers shared by config loading and the
// millisecond timestamps the client persists.
package timex

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// Duration wraps time.Duration so JSON can carry either a string such as
// "5m" or an integer number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// FormatMillis renders t as Unix milliseconds, the timestamp format stored
// under keys such as sessionExpiresAt and adminTokenExpiry.
func FormatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseMillis parses a Unix millisecond timestamp. ok is false for empty or
// malformed input.
func ParseMillis(s string) (t time.Time, ok bool) {
	if s == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
