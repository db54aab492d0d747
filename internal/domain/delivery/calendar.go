package delivery

import (
	"fmt"
	"time"

	"github.com/selkies/backend/internal/domain/shared"
)

// DateLayout is the wire format of civil dates
const DateLayout = "2006-01-02"

const (
	// DefaultLookaheadDays is how far ahead of the start date first occurrences are searched
	DefaultLookaheadDays = 21
	// MinLookaheadDays is the shortest window guaranteed to contain every weekday
	MinLookaheadDays = 7
	// MaxHorizonDays bounds candidate start date enumeration
	MaxHorizonDays = 366
	// MaxRangeDays is the longest span a recurring plan may cover, start to end
	MaxRangeDays = 366
)

const day = 24 * time.Hour

// Calendar answers delivery-date questions that depend on "today".
// Everything else in this package is a pure function over civil dates.
type Calendar struct {
	now      func() time.Time
	location *time.Location
}

// CalendarOption configures a Calendar
type CalendarOption func(*Calendar)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) CalendarOption {
	return func(c *Calendar) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the business time zone used to decide the current date
func WithLocation(loc *time.Location) CalendarOption {
	return func(c *Calendar) {
		if loc != nil {
			c.location = loc
		}
	}
}

// NewCalendar creates a Calendar using the system clock in UTC unless configured otherwise
func NewCalendar(opts ...CalendarOption) *Calendar {
	c := &Calendar{
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current instant from the calendar's clock
func (c *Calendar) Now() time.Time {
	return c.now()
}

// Today returns the current civil date in the calendar's time zone
func (c *Calendar) Today() time.Time {
	return Date(c.now().In(c.location))
}

// CandidateStartDates enumerates today through today+horizonDays-1, keeping only delivery days.
// The result is recomputed on each call since "today" moves.
func (c *Calendar) CandidateStartDates(horizonDays int) ([]time.Time, error) {
	if horizonDays <= 0 || horizonDays > MaxHorizonDays {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("horizon must be between 1 and %d days", MaxHorizonDays))
	}
	today := c.Today()
	dates := make([]time.Time, 0, horizonDays/2+1)
	for i := 0; i < horizonDays; i++ {
		d := today.AddDate(0, 0, i)
		if IsDeliveryDay(d) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// Date truncates t to its civil date, expressed as midnight UTC.
// The year, month and day are read in t's own location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD civil date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, shared.NewDomainError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("date %q must use the format YYYY-MM-DD", s))
	}
	return t, nil
}

// FormatDate formats a civil date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// IsDeliveryDay reports whether the date falls on Tuesday, Thursday or Saturday
func IsDeliveryDay(date time.Time) bool {
	_, ok := WeekdayOf(date)
	return ok
}

// NextDeliveryDay returns the first delivery day on or after date
func NextDeliveryDay(date time.Time) time.Time {
	d := Date(date)
	for !IsDeliveryDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// AddMonthClamped adds one calendar month, clamping the day to the end of the
// target month (31 January becomes the last day of February).
func AddMonthClamped(date time.Time) time.Time {
	y, m, d := date.Date()
	firstOfTarget := time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, time.UTC)
}

// DefaultEndDate returns start plus one calendar month, moved forward to the next
// delivery day when it does not land on one. It never moves backward.
func DefaultEndDate(start time.Time) (time.Time, error) {
	if err := ValidateStart(start); err != nil {
		return time.Time{}, err
	}
	return NextDeliveryDay(AddMonthClamped(Date(start))), nil
}

// FirstOccurrencePerWeekday scans start through start+lookaheadDays-1 and records the
// first date seen for each delivery weekday.
func FirstOccurrencePerWeekday(start time.Time, lookaheadDays int) (map[Weekday]time.Time, error) {
	if lookaheadDays < MinLookaheadDays {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("lookahead must be at least %d days", MinLookaheadDays))
	}
	start = Date(start)
	out := make(map[Weekday]time.Time, WeekdayCount)
	for i := 0; i < lookaheadDays && len(out) < WeekdayCount; i++ {
		d := start.AddDate(0, 0, i)
		if w, ok := WeekdayOf(d); ok {
			if _, seen := out[w]; !seen {
				out[w] = d
			}
		}
	}
	return out, nil
}

// DeliveryDatesInRange returns every delivery day from start to end inclusive, in order
func DeliveryDatesInRange(start, end time.Time) ([]time.Time, error) {
	start, end = Date(start), Date(end)
	if end.Before(start) {
		return nil, errEndBeforeStart(start, end)
	}
	dates := make([]time.Time, 0, daysBetween(start, end)/2+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsDeliveryDay(d) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// OccurrenceCount counts how many times weekday occurs between start and end inclusive
func OccurrenceCount(weekday Weekday, start, end time.Time) (int, error) {
	if !weekday.IsValid() {
		return 0, shared.NewDomainError(shared.ErrInvalidInput.Code, "unknown delivery weekday")
	}
	start, end = Date(start), Date(end)
	if end.Before(start) {
		return 0, errEndBeforeStart(start, end)
	}
	offset := (int(weekday.TimeWeekday()) - int(start.Weekday()) + 7) % 7
	first := start.AddDate(0, 0, offset)
	if first.After(end) {
		return 0, nil
	}
	return daysBetween(first, end)/7 + 1, nil
}

// ValidateStart rejects start dates that are not delivery days
func ValidateStart(start time.Time) error {
	if start.IsZero() {
		return shared.NewDomainError(shared.CodeInvalidDeliveryDate, "start date is required")
	}
	if !IsDeliveryDay(start) {
		return shared.NewDomainError(shared.CodeInvalidDeliveryDate,
			fmt.Sprintf("start date %s is a %s; deliveries run on Tuesday, Thursday and Saturday",
				FormatDate(start), start.Weekday()))
	}
	return nil
}

// ValidateRange checks a recurring plan's date range: both ends are delivery days
// and the end does not precede the start.
func ValidateRange(start, end time.Time) error {
	if err := ValidateStart(start); err != nil {
		return err
	}
	if end.IsZero() {
		return shared.NewDomainError(shared.CodeInvalidDeliveryDate, "end date is required")
	}
	if !IsDeliveryDay(end) {
		return shared.NewDomainError(shared.CodeInvalidDeliveryDate,
			fmt.Sprintf("end date %s is a %s; deliveries run on Tuesday, Thursday and Saturday",
				FormatDate(end), end.Weekday()))
	}
	if Date(end).Before(Date(start)) {
		return errEndBeforeStart(start, end)
	}
	if daysBetween(Date(start), Date(end)) > MaxRangeDays {
		return shared.NewDomainError(shared.CodeInvalidDeliveryDate,
			fmt.Sprintf("end date %s is more than %d days after start date %s",
				FormatDate(end), MaxRangeDays, FormatDate(start)))
	}
	return nil
}

func errEndBeforeStart(start, end time.Time) error {
	return shared.NewDomainError(shared.CodeInvalidDeliveryDate,
		fmt.Sprintf("end date %s is before start date %s", FormatDate(end), FormatDate(start)))
}

// daysBetween counts whole civil days from a to b. Day numbers are used instead of
// b.Sub(a), which saturates at about 292 years.
func daysBetween(a, b time.Time) int {
	return int(dayNumber(b) - dayNumber(a))
}

func dayNumber(t time.Time) int64 {
	secs := Date(t).Unix()
	n := secs / 86400
	if secs%86400 < 0 {
		n--
	}
	return n
}
