package store

import "fmt"

// Business-policy constants, not configuration.
const (
	MaxLineItems  = 5
	MaxTotalCents = 350000 // 3500.00, boundary inclusive
)

// ValidateLineItems checks the shape of a purchase's line items: at least
// one, at most MaxLineItems, and every item with a product, a positive
// quantity and a positive unit price.
func ValidateLineItems(items []LineItemInput) error {
	if len(items) == 0 {
		return &ValidationError{
			Code:    CodeEmptyItems,
			Message: "a purchase needs at least one line item",
		}
	}
	if len(items) > MaxLineItems {
		return &ValidationError{
			Code:    CodeTooManyItems,
			Message: fmt.Sprintf("a purchase may hold at most %d line items", MaxLineItems),
		}
	}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 || it.PriceCents <= 0 {
			return &ValidationError{
				Code:    CodeMissingFields,
				Message: "each line item needs product_id, a positive quantity and a positive price_cents",
			}
		}
	}
	return nil
}

// ComputeTotal sums quantity * unit price across items and enforces the
// purchase ceiling.
func ComputeTotal(items []LineItemInput) (int64, error) {
	var total int64
	for _, it := range items {
		total += int64(it.Quantity) * it.PriceCents
	}
	if total > MaxTotalCents {
		return 0, &ValidationError{
			Code: CodeTotalExceeded,
			Message: fmt.Sprintf("purchase total %d cents exceeds the ceiling of %d cents",
				total, MaxTotalCents),
		}
	}
	return total, nil
}
