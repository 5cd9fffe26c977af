package value

import "time"

// ServerTime is a timestamp assigned by the remote backend.
//
// The zero value is the write sentinel: it asks the backend to stamp its own
// clock when the write commits. Once committed, At holds the assigned instant.
type ServerTime struct {
	At time.Time
}

// ServerNow returns the write sentinel.
func ServerNow() ServerTime {
	return ServerTime{}
}

// Resolved reports whether the backend has assigned a time.
func (s ServerTime) Resolved() bool {
	return !s.At.IsZero()
}

// TimeLayout is the snapshot representation of a Temporal: RFC 3339 in UTC
// with as many fractional digits as needed to be lossless.
const TimeLayout = time.RFC3339Nano

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// dateOnly is accepted on read for values written by clients that store calendar dates.
const dateOnly = "2006-01-02"

// ParseTime parses a stored date-time. It accepts RFC 3339 with or without
// fractional seconds, and bare calendar dates (interpreted as UTC midnight).
func ParseTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
