package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor points at the last provider record already consumed. Its wire
// form is mmyyyy$N, e.g. 102025$455.
type Cursor struct {
	Month    time.Month
	Year     int
	Sequence int64
}

// InitialCursor returns the cursor for the start of the month containing t.
func InitialCursor(t time.Time) Cursor {
	return Cursor{Month: t.Month(), Year: t.Year(), Sequence: 0}
}

// ParseCursor decodes the mmyyyy$N encoding.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	head, seq, ok := strings.Cut(s, "$")
	if !ok || len(head) != 6 {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}

	month, err := strconv.Atoi(head[:2])
	if err != nil || month < 1 || month > 12 {
		return Cursor{}, fmt.Errorf("%w: bad month in %q", ErrInvalidCursor, s)
	}
	year, err := strconv.Atoi(head[2:])
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad year in %q", ErrInvalidCursor, s)
	}
	n, err := strconv.ParseInt(seq, 10, 64)
	if err != nil || n < 0 {
		return Cursor{}, fmt.Errorf("%w: bad sequence in %q", ErrInvalidCursor, s)
	}

	return Cursor{Month: time.Month(month), Year: year, Sequence: n}, nil
}

// String encodes the cursor as mmyyyy$N.
func (c Cursor) String() string {
	return fmt.Sprintf("%02d%04d$%d", int(c.Month), c.Year, c.Sequence)
}

// IsZero reports whether the cursor was never set.
func (c Cursor) IsZero() bool {
	return c.Month == 0 && c.Year == 0 && c.Sequence == 0
}
