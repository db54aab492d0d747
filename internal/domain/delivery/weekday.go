package delivery

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is one of the three weekdays on which the bakery delivers.
// The zero value is Tuesday; the values double as indexes into per-day arrays.
type Weekday int

const (
	Tuesday Weekday = iota
	Thursday
	Saturday
)

// WeekdayCount is the number of delivery weekdays
const WeekdayCount = 3

// Weekdays lists the delivery weekdays in their fixed order
var Weekdays = [WeekdayCount]Weekday{Tuesday, Thursday, Saturday}

var weekdayNames = [WeekdayCount]string{"Tuesday", "Thursday", "Saturday"}

var weekdayTime = [WeekdayCount]time.Weekday{time.Tuesday, time.Thursday, time.Saturday}

// IsValid checks if the value is one of the delivery weekdays
func (w Weekday) IsValid() bool {
	return w >= Tuesday && w <= Saturday
}

// String returns the English weekday name
func (w Weekday) String() string {
	if !w.IsValid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// TimeWeekday returns the corresponding time.Weekday
func (w Weekday) TimeWeekday() time.Weekday {
	return weekdayTime[w]
}

// MarshalText implements encoding.TextMarshaler, so weekdays serialize by name
// both as values and as map keys.
func (w Weekday) MarshalText() ([]byte, error) {
	if !w.IsValid() {
		return nil, fmt.Errorf("invalid delivery weekday %d", int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (w *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// ParseWeekday parses a delivery weekday name, case-insensitively.
// Three-letter abbreviations are accepted. Any non-delivery weekday fails.
func ParseWeekday(s string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range weekdayNames {
		full := strings.ToLower(n)
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("%q is not a delivery weekday", s)
}

// WeekdayOf returns the delivery weekday of a date, and false when the date
// falls on a day without deliveries.
func WeekdayOf(date time.Time) (Weekday, bool) {
	switch date.Weekday() {
	case time.Tuesday:
		return Tuesday, true
	case time.Thursday:
		return Thursday, true
	case time.Saturday:
		return Saturday, true
	}
	return 0, false
}
