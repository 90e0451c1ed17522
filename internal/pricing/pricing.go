// Package pricing computes line and document totals for quotations and
// orders. All amounts are VND and rounded to whole đồng.
package pricing

import (
	"math"

	"smtparts/internal/models"
)

// Round rounds to the nearest đồng.
func Round(v float64) float64 {
	return math.Round(v)
}

// LineTotal is qty × unit price less the percentage discount.
func LineTotal(qty, unitPrice, discount float64) float64 {
	return Round(qty * unitPrice * (1 - discount/100))
}

// Totals holds the computed document amounts.
type Totals struct {
	Subtotal  float64
	VATAmount float64
	Total     float64
}

// Compute fills each item's LineTotal and returns the document totals.
func Compute(items []models.LineItem, vatRate float64) Totals {
	var t Totals
	for i := range items {
		items[i].LineTotal = LineTotal(items[i].Qty, items[i].UnitPrice, items[i].Discount)
		t.Subtotal += items[i].LineTotal
	}
	t.VATAmount = Round(t.Subtotal * vatRate / 100)
	t.Total = t.Subtotal + t.VATAmount
	return t
}

// Drift reports whether stored totals differ from a recomputation by more
// than one đồng.
func Drift(stored, computed Totals) bool {
	return math.Abs(stored.Subtotal-computed.Subtotal) > 1 ||
		math.Abs(stored.VATAmount-computed.VATAmount) > 1 ||
		math.Abs(stored.Total-computed.Total) > 1
}
