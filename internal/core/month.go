// Package core holds the pure domain of the goal-funding engine: entities,
// month arithmetic, the requirement calculator, and the flex amount rule.
// Nothing in this package performs I/O.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Month labels one calendar month, serialized as "2006-01".
type Month struct {
	Year int
	Mon  time.Month
}

var ErrInvalidMonth = errors.New("invalid month label")

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Mon: t.Month()}
}

// ParseMonth parses a "2006-01" label.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Mon))
}

// Time returns midnight UTC on the first day of the month.
func (m Month) Time() time.Time {
	return time.Date(m.Year, m.Mon, 1, 0, 0, 0, 0, time.UTC)
}

// Add returns the month n months later (n may be negative).
func (m Month) Add(n int) Month {
	return MonthOf(m.Time().AddDate(0, n, 0))
}

// Next returns the following month.
func (m Month) Next() Month {
	return m.Add(1)
}

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Mon < o.Mon
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Mon == 0
}

// MarshalJSON serializes the month as its "2006-01" label.
func (m Month) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMonth, data)
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MonthsBetween returns the number of whole calendar months from `from` to
// `to`, floored at 0. A partial month does not count: from Jan 15 to Mar 10
// only one whole month has room.
func MonthsBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
