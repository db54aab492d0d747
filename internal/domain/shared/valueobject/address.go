package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Address is a value object representing a delivery address
// It is immutable - all operations return new Address instances
type Address struct {
	recipient  string
	phone      string
	line1      string
	line2      string
	city       string
	state      string
	postalCode string
}

// AddressOption is a functional option for configuring Address
type AddressOption func(*Address)

// WithLine2 sets the second address line
func WithLine2(line2 string) AddressOption {
	return func(a *Address) {
		a.line2 = strings.TrimSpace(line2)
	}
}

// WithState sets the state for the address
func WithState(state string) AddressOption {
	return func(a *Address) {
		a.state = strings.TrimSpace(state)
	}
}

// WithPhone sets the contact phone number
func WithPhone(phone string) AddressOption {
	return func(a *Address) {
		a.phone = strings.TrimSpace(phone)
	}
}

var postalCodePattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z -]{2,9}$`)

// NewAddress creates a new Address with the required fields.
// Recipient, line1, city and postal code are required.
func NewAddress(recipient, line1, city, postalCode string, opts ...AddressOption) (Address, error) {
	addr := Address{
		recipient:  strings.TrimSpace(recipient),
		line1:      strings.TrimSpace(line1),
		city:       strings.TrimSpace(city),
		postalCode: NormalizePostalCode(postalCode),
	}
	for _, opt := range opts {
		opt(&addr)
	}
	if err := addr.validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// MustNewAddress creates a new Address, panics on error
func MustNewAddress(recipient, line1, city, postalCode string, opts ...AddressOption) Address {
	addr, err := NewAddress(recipient, line1, city, postalCode, opts...)
	if err != nil {
		panic(err)
	}
	return addr
}

// EmptyAddress returns an empty address (for optional address fields)
func EmptyAddress() Address {
	return Address{}
}

// NormalizePostalCode strips surrounding and inner whitespace from a postal code
func NormalizePostalCode(code string) string {
	return strings.Join(strings.Fields(code), "")
}

// Recipient returns the name of the person receiving the delivery
func (a Address) Recipient() string {
	return a.recipient
}

// Phone returns the contact phone number
func (a Address) Phone() string {
	return a.phone
}

// Line1 returns the first address line
func (a Address) Line1() string {
	return a.line1
}

// Line2 returns the second address line
func (a Address) Line2() string {
	return a.line2
}

// City returns the city
func (a Address) City() string {
	return a.city
}

// State returns the state
func (a Address) State() string {
	return a.state
}

// PostalCode returns the postal code
func (a Address) PostalCode() string {
	return a.postalCode
}

// IsEmpty returns true if the address is empty
func (a Address) IsEmpty() bool {
	return a.recipient == "" && a.line1 == "" && a.city == "" && a.postalCode == ""
}

// FullAddress returns the complete formatted address string
func (a Address) FullAddress() string {
	if a.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, 5)
	for _, p := range []string{a.line1, a.line2, a.city, a.state} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	s := strings.Join(parts, ", ")
	if a.postalCode != "" {
		s += " " + a.postalCode
	}
	return s
}

// String returns a string representation of the address
func (a Address) String() string {
	return a.FullAddress()
}

// Equals returns true if both addresses are equal
func (a Address) Equals(other Address) bool {
	return a == other
}

// InPostalCode reports whether the address lies in the given postal code
func (a Address) InPostalCode(code string) bool {
	return a.postalCode != "" && strings.EqualFold(a.postalCode, NormalizePostalCode(code))
}

// addressJSON is used for JSON marshaling/unmarshaling
type addressJSON struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
}

// MarshalJSON implements json.Marshaler
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(addressJSON{
		Recipient:  a.recipient,
		Phone:      a.phone,
		Line1:      a.line1,
		Line2:      a.line2,
		City:       a.city,
		State:      a.state,
		PostalCode: a.postalCode,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
// Delegates to NewAddress so the same validation rules apply.
func (a *Address) UnmarshalJSON(data []byte) error {
	var v addressJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Recipient == "" && v.Line1 == "" && v.City == "" && v.PostalCode == "" {
		*a = EmptyAddress()
		return nil
	}
	addr, err := NewAddress(v.Recipient, v.Line1, v.City, v.PostalCode,
		WithLine2(v.Line2), WithState(v.State), WithPhone(v.Phone))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// Value implements driver.Valuer for database storage
// Stores as JSON string
func (a Address) Value() (driver.Value, error) {
	if a.IsEmpty() {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (a *Address) Scan(value any) error {
	if value == nil {
		*a = EmptyAddress()
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into Address", value)
	}

	if len(data) == 0 || string(data) == "null" {
		*a = EmptyAddress()
		return nil
	}

	return json.Unmarshal(data, a)
}

func (a Address) validate() error {
	if a.recipient == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if len(a.recipient) > 100 {
		return fmt.Errorf("recipient cannot exceed 100 characters")
	}
	if a.line1 == "" {
		return fmt.Errorf("address line cannot be empty")
	}
	if len(a.line1) > 200 || len(a.line2) > 200 {
		return fmt.Errorf("address line cannot exceed 200 characters")
	}
	if a.city == "" {
		return fmt.Errorf("city cannot be empty")
	}
	if len(a.city) > 100 || len(a.state) > 100 {
		return fmt.Errorf("city and state cannot exceed 100 characters")
	}
	if !postalCodePattern.MatchString(a.postalCode) {
		return fmt.Errorf("postal code %q is not valid", a.postalCode)
	}
	if len(a.phone) > 20 {
		return fmt.Errorf("phone cannot exceed 20 characters")
	}
	return nil
}
