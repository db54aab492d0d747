package subscription

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// FormatMoney renders an amount with its currency symbol for display to customers
func FormatMoney(m valueobject.Money, tag language.Tag) string {
	unit, err := currency.ParseISO(string(m.Currency()))
	if err != nil {
		return m.String()
	}
	f, _ := m.Amount().Round(m.Currency().Exponent()).Float64()
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(f)))
}
