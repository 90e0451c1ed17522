package validation

// Common enum values - these MUST match DB CHECK constraints in the database package.
var (
	ValidQuotationStatuses = []string{"draft", "sent", "accepted", "rejected", "expired"}
	ValidOrderStatuses     = []string{"pending", "confirmed", "shipping", "delivered", "cancelled"}
	ValidPaymentStatuses   = []string{"unpaid", "partial", "paid"}
	ValidDealStages        = []string{"lead", "qualified", "proposal", "negotiation", "won", "lost"}
	ValidVATRates          = []float64{0, 5, 8, 10}
)

// OrderTransitions lists the statuses an order may move to from each status.
var OrderTransitions = map[string][]string{
	"pending":   {"confirmed", "cancelled"},
	"confirmed": {"shipping", "cancelled"},
	"shipping":  {"delivered", "cancelled"},
	"delivered": {},
	"cancelled": {},
}

// CanTransitionOrder reports whether an order may move from one status to another.
func CanTransitionOrder(from, to string) bool {
	for _, s := range OrderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
