package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

const clockLayout = "15:04:05"

// Clock is a time-of-day value (no date component). It backs Postgres TIME
// columns and renders as "HH:MM:SS" in JSON.
type Clock struct {
	time.Time
}

// NewClock builds a Clock from hour, minute and second.
func NewClock(hour, min, sec int) Clock {
	return Clock{time.Date(0, time.January, 1, hour, min, sec, 0, time.UTC)}
}

// ClockOf extracts the time-of-day from an instant.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute(), t.Second())
}

// SecondsIntoDay returns the number of seconds since midnight.
func (c Clock) SecondsIntoDay() int {
	return c.Hour()*3600 + c.Minute()*60 + c.Second()
}

// After reports whether c is strictly later in the day than other.
func (c Clock) After(other Clock) bool {
	return c.SecondsIntoDay() > other.SecondsIntoDay()
}

// String renders the clock as HH:MM:SS.
func (c Clock) String() string {
	return c.Format(clockLayout)
}

// MarshalJSON renders the clock as a "HH:MM:SS" JSON string.
func (c Clock) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.Format(clockLayout) + `"`), nil
}

// UnmarshalJSON parses "HH:MM:SS" or "HH:MM".
func (c *Clock) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClock accepts "HH:MM:SS" or "HH:MM".
func ParseClock(raw string) (Clock, error) {
	for _, layout := range []string{clockLayout, "15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return ClockOf(t), nil
		}
	}
	return Clock{}, fmt.Errorf("invalid time of day %q, expected HH:MM or HH:MM:SS", raw)
}

// Scan implements sql.Scanner for TIME columns.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = Clock{}
		return nil
	case time.Time:
		*c = ClockOf(v)
		return nil
	case []byte:
		parsed, err := ParseClock(string(v))
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case string:
		parsed, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
}

// Value implements driver.Valuer.
func (c Clock) Value() (driver.Value, error) {
	return c.Format(clockLayout), nil
}
