package catalog

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Snapshot is an immutable view of the catalog taken when a session starts.
// Prices are not re-checked against fresher data for the life of the session.
type Snapshot struct {
	products []Product
	byID     map[uuid.UUID]int
}

// NewSnapshot copies the given products into a snapshot, ordered by name
func NewSnapshot(products []Product) Snapshot {
	cp := make([]Product, len(products))
	copy(cp, products)
	SortByName(cp)
	byID := make(map[uuid.UUID]int, len(cp))
	for i, p := range cp {
		byID[p.ID] = i
	}
	return Snapshot{products: cp, byID: byID}
}

// Products returns a copy of the snapshot's products in name order
func (s Snapshot) Products() []Product {
	cp := make([]Product, len(s.products))
	copy(cp, s.products)
	return cp
}

// Lookup finds a product by ID
func (s Snapshot) Lookup(id uuid.UUID) (Product, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Product{}, false
	}
	return s.products[i], true
}

// Len returns the number of products
func (s Snapshot) Len() int {
	return len(s.products)
}

// IsEmpty reports whether the snapshot has no products
func (s Snapshot) IsEmpty() bool {
	return len(s.products) == 0
}

// MarshalJSON implements json.Marshaler
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.products == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.products)
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return err
	}
	*s = NewSnapshot(products)
	return nil
}
