package selection

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// Entry is a product chosen for a delivery day. Quantity is always at least one;
// a product with no quantity has no entry.
type Entry struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// LineTotal returns quantity × unit price
func (e Entry) LineTotal() valueobject.Money {
	return e.Product.Price.MultiplyByInt(int64(e.Quantity))
}

// DaySelections holds per-weekday product quantities.
// It is a value: every mutation returns a new DaySelections and leaves the receiver untouched.
// The zero value is an empty selection.
type DaySelections struct {
	days [delivery.WeekdayCount]map[uuid.UUID]Entry
}

// New returns an empty DaySelections
func New() DaySelections {
	return DaySelections{}
}

// Increment raises the product's quantity on day by one, creating the entry at one
func (s DaySelections) Increment(day delivery.Weekday, product catalog.Product) DaySelections {
	mustValid(day)
	next := s.withDayCopy(day)
	entry, ok := next.days[day][product.ID]
	if !ok {
		entry = Entry{Product: product}
	}
	entry.Quantity++
	next.days[day][product.ID] = entry
	return next
}

// Decrement lowers the product's quantity on day by one. An entry at one is removed.
// Decrementing an absent product returns the selections unchanged.
func (s DaySelections) Decrement(day delivery.Weekday, productID uuid.UUID) DaySelections {
	mustValid(day)
	entry, ok := s.days[day][productID]
	if !ok {
		return s
	}
	next := s.withDayCopy(day)
	if entry.Quantity <= 1 {
		delete(next.days[day], productID)
	} else {
		entry.Quantity--
		next.days[day][productID] = entry
	}
	return next
}

// Copy replaces to's entries with a copy of from's entries. Anything previously on to is discarded.
func (s DaySelections) Copy(from, to delivery.Weekday) DaySelections {
	mustValid(from)
	mustValid(to)
	if from == to {
		return s
	}
	next := s
	next.days[to] = cloneDay(s.days[from])
	return next
}

// Clear removes every entry on day
func (s DaySelections) Clear(day delivery.Weekday) DaySelections {
	mustValid(day)
	next := s
	next.days[day] = nil
	return next
}

// QuantityOf returns the product's quantity on day, zero when absent
func (s DaySelections) QuantityOf(day delivery.Weekday, productID uuid.UUID) int {
	if !day.IsValid() {
		return 0
	}
	return s.days[day][productID].Quantity
}

// ItemsOn sums the quantities selected for day
func (s DaySelections) ItemsOn(day delivery.Weekday) int {
	if !day.IsValid() {
		return 0
	}
	total := 0
	for _, e := range s.days[day] {
		total += e.Quantity
	}
	return total
}

// TotalItemsAcrossDays sums every quantity over all weekdays
func (s DaySelections) TotalItemsAcrossDays() int {
	total := 0
	for _, w := range delivery.Weekdays {
		total += s.ItemsOn(w)
	}
	return total
}

// Entries returns day's entries ordered by product name
func (s DaySelections) Entries(day delivery.Weekday) []Entry {
	if !day.IsValid() {
		return nil
	}
	entries := make([]Entry, 0, len(s.days[day]))
	for _, e := range s.days[day] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Product.Name != entries[j].Product.Name {
			return entries[i].Product.Name < entries[j].Product.Name
		}
		return entries[i].Product.ID.String() < entries[j].Product.ID.String()
	})
	return entries
}

// IsDayEmpty reports whether nothing is selected for day
func (s DaySelections) IsDayEmpty(day delivery.Weekday) bool {
	return s.ItemsOn(day) == 0
}

// IsEmpty reports whether nothing is selected on any day
func (s DaySelections) IsEmpty() bool {
	return s.TotalItemsAcrossDays() == 0
}

// Equal reports whether both selections hold the same products and quantities on every day
func (s DaySelections) Equal(other DaySelections) bool {
	for _, w := range delivery.Weekdays {
		if len(s.days[w]) != len(other.days[w]) {
			return false
		}
		for id, e := range s.days[w] {
			o, ok := other.days[w][id]
			if !ok || o.Quantity != e.Quantity {
				return false
			}
		}
	}
	return true
}

// Snapshot is the serialized form of DaySelections: every weekday is present,
// with its entries ordered by product name.
type Snapshot map[delivery.Weekday][]Entry

// Snapshot returns a serializable copy of the selections
func (s DaySelections) Snapshot() Snapshot {
	snap := make(Snapshot, delivery.WeekdayCount)
	for _, w := range delivery.Weekdays {
		snap[w] = s.Entries(w)
	}
	return snap
}

// FromSnapshot rebuilds DaySelections, rejecting non-positive quantities and duplicate products
func FromSnapshot(snap Snapshot) (DaySelections, error) {
	var s DaySelections
	for day, entries := range snap {
		if !day.IsValid() {
			return DaySelections{}, shared.NewDomainError(shared.ErrInvalidInput.Code,
				fmt.Sprintf("unknown delivery weekday %d", int(day)))
		}
		if len(entries) == 0 {
			continue
		}
		m := make(map[uuid.UUID]Entry, len(entries))
		for _, e := range entries {
			if e.Quantity < 1 {
				return DaySelections{}, shared.NewDomainError(shared.ErrInvalidInput.Code,
					fmt.Sprintf("quantity of %s on %s must be positive", e.Product.Name, day))
			}
			if _, dup := m[e.Product.ID]; dup {
				return DaySelections{}, shared.NewDomainError(shared.ErrInvalidInput.Code,
					fmt.Sprintf("product %s appears twice on %s", e.Product.Name, day))
			}
			m[e.Product.ID] = e
		}
		s.days[day] = m
	}
	return s, nil
}

// MarshalJSON implements json.Marshaler
func (s DaySelections) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// UnmarshalJSON implements json.Unmarshaler
func (s *DaySelections) UnmarshalJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	parsed, err := FromSnapshot(snap)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// withDayCopy returns a copy of s whose map for day is freshly allocated,
// so the caller may write to it without affecting s.
func (s DaySelections) withDayCopy(day delivery.Weekday) DaySelections {
	next := s
	next.days[day] = cloneDay(s.days[day])
	if next.days[day] == nil {
		next.days[day] = make(map[uuid.UUID]Entry)
	}
	return next
}

func cloneDay(m map[uuid.UUID]Entry) map[uuid.UUID]Entry {
	if len(m) == 0 {
		return nil
	}
	cp := make(map[uuid.UUID]Entry, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func mustValid(day delivery.Weekday) {
	if !day.IsValid() {
		panic(fmt.Sprintf("selection: invalid delivery weekday %d", int(day)))
	}
}
