package pricing

import (
	"time"

	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/selection"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// Engine computes order totals. It has no side effects; all amounts are exact decimals.
// Every product priced by one engine must share the engine's currency.
type Engine struct {
	currency valueobject.Currency
}

// NewEngine creates a pricing engine for the given currency
func NewEngine(currency valueobject.Currency) *Engine {
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	return &Engine{currency: currency}
}

// Currency returns the currency totals are expressed in
func (e *Engine) Currency() valueobject.Currency {
	return e.currency
}

// DaySubtotal sums quantity × price over day's entries
func (e *Engine) DaySubtotal(day delivery.Weekday, selections selection.DaySelections) valueobject.Money {
	total := valueobject.Zero(e.currency)
	for _, entry := range selections.Entries(day) {
		total = total.MustAdd(entry.LineTotal())
	}
	return total
}

// OneTimeTotal bills exactly one delivery of selectedDay's basket
func (e *Engine) OneTimeTotal(selectedDay delivery.Weekday, selections selection.DaySelections) valueobject.Money {
	return e.DaySubtotal(selectedDay, selections)
}

// RecurringTotal bills each weekday's basket once per occurrence of that weekday
// between start and end inclusive.
func (e *Engine) RecurringTotal(start, end time.Time, selections selection.DaySelections) (valueobject.Money, error) {
	q, err := e.RecurringQuote(start, end, selections)
	if err != nil {
		return valueobject.Money{}, err
	}
	return q.Total, nil
}

// DayLine is the priced basket of one delivery weekday
type DayLine struct {
	Weekday     delivery.Weekday  `json:"weekday"`
	Items       int               `json:"items"`
	Subtotal    valueobject.Money `json:"subtotal"`
	Occurrences int               `json:"occurrences"`
	Total       valueobject.Money `json:"total"`
}

// Quote is a price breakdown shown before payment
type Quote struct {
	Lines []DayLine         `json:"lines"`
	Total valueobject.Money `json:"total"`
}

// OneTimeQuote prices a single delivery of selectedDay's basket
func (e *Engine) OneTimeQuote(selectedDay delivery.Weekday, selections selection.DaySelections) Quote {
	subtotal := e.DaySubtotal(selectedDay, selections)
	return Quote{
		Lines: []DayLine{{
			Weekday:     selectedDay,
			Items:       selections.ItemsOn(selectedDay),
			Subtotal:    subtotal,
			Occurrences: 1,
			Total:       subtotal,
		}},
		Total: subtotal,
	}
}

// RecurringQuote prices every weekday across the start..end range
func (e *Engine) RecurringQuote(start, end time.Time, selections selection.DaySelections) (Quote, error) {
	q := Quote{
		Lines: make([]DayLine, 0, delivery.WeekdayCount),
		Total: valueobject.Zero(e.currency),
	}
	for _, w := range delivery.Weekdays {
		n, err := delivery.OccurrenceCount(w, start, end)
		if err != nil {
			return Quote{}, err
		}
		subtotal := e.DaySubtotal(w, selections)
		line := DayLine{
			Weekday:     w,
			Items:       selections.ItemsOn(w),
			Subtotal:    subtotal,
			Occurrences: n,
			Total:       subtotal.MultiplyByInt(int64(n)),
		}
		q.Lines = append(q.Lines, line)
		q.Total = q.Total.MustAdd(line.Total)
	}
	return q, nil
}
