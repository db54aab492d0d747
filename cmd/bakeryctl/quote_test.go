package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/selkies/backend/internal/domain/pricing"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
)

func TestReadBasket(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		b, err := readBasket(strings.NewReader(`{
			"recurrence": "recurring",
			"start_date": "2026-10-20",
			"end_date": "2026-11-03",
			"days": {"tuesday": [{"name": "Sourdough", "price": "50", "quantity": 1}]}
		}`), "-")
		require.NoError(t, err)
		assert.Equal(t, "recurring", b.Recurrence)
		assert.Len(t, b.Days["tuesday"], 1)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := readBasket(strings.NewReader(`{"recurrence": "recurring", "colour": "blue"}`), "-")
		assert.Error(t, err)
	})
}

func TestBasketToPlan(t *testing.T) {
	t.Run("recurring basket is priced per occurrence", func(t *testing.T) {
		b := &basketFile{
			Recurrence: "recurring",
			StartDate:  "2026-10-20",
			EndDate:    "2026-11-03",
			Days: map[string][]basketRow{
				"tue": {{Name: "Sourdough", Price: mustDecimal(t, "50"), Quantity: 1}},
			},
		}
		plan, err := b.toPlan(valueobject.INR)
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanStateProductsSelected, plan.State)

		q, err := plan.Quote(pricing.NewEngine(valueobject.INR))
		require.NoError(t, err)
		assert.Equal(t, int64(15000), q.Total.MinorUnits())
	})

	t.Run("one-time basket only accepts the start weekday", func(t *testing.T) {
		b := &basketFile{
			Recurrence: "one-time",
			StartDate:  "2026-10-20",
			Days: map[string][]basketRow{
				"saturday": {{Name: "Veg Puff", Category: "Savouries", Price: mustDecimal(t, "100"), Quantity: 2}},
			},
		}
		_, err := b.toPlan(valueobject.INR)
		assert.Error(t, err)
	})

	t.Run("start on a non delivery day", func(t *testing.T) {
		b := &basketFile{Recurrence: "one-time", StartDate: "2026-10-21"}
		_, err := b.toPlan(valueobject.INR)
		assert.Error(t, err)
	})

	t.Run("unknown recurrence", func(t *testing.T) {
		b := &basketFile{Recurrence: "weekly", StartDate: "2026-10-20"}
		_, err := b.toPlan(valueobject.INR)
		assert.Error(t, err)
	})
}

func TestPrintQuote(t *testing.T) {
	b := &basketFile{
		Recurrence: "one-time",
		StartDate:  "2026-10-22",
		Days: map[string][]basketRow{
			"thursday": {{Name: "Veg Puff", Category: "Savouries", Price: mustDecimal(t, "100"), Quantity: 2}},
		},
	}
	plan, err := b.toPlan(valueobject.INR)
	require.NoError(t, err)
	q, err := plan.Quote(pricing.NewEngine(valueobject.INR))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printQuote(&out, plan, q, language.English))
	assert.Contains(t, out.String(), "2026-10-22")
	assert.Contains(t, out.String(), "Thursday")
	assert.Contains(t, out.String(), "200")
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
