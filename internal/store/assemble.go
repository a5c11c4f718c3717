package store

import "time"

// purchaseRow is one flat row of the header × user × detail × product join.
// Detail columns are pointers because a header without lines joins to NULLs.
type purchaseRow struct {
	ID            string
	UserID        string
	UserName      string
	TotalCents    int64
	Status        Status
	PurchaseDate  time.Time
	DetailID      *string
	ProductID     *string
	ProductName   *string
	Quantity      *int
	PriceCents    *int64
	SubtotalCents *int64
}

// assemblePurchases folds flat join rows into nested purchases. First pass
// collects headers in first-seen order; second pass projects line items onto
// them. A header whose join produced no detail rows keeps an empty, non-nil
// Details slice.
func assemblePurchases(rows []purchaseRow) []Purchase {
	idx := make(map[string]int, len(rows))
	out := make([]Purchase, 0, len(rows))
	for _, r := range rows {
		if _, seen := idx[r.ID]; seen {
			continue
		}
		idx[r.ID] = len(out)
		out = append(out, Purchase{
			ID:           r.ID,
			UserID:       r.UserID,
			UserName:     r.UserName,
			TotalCents:   r.TotalCents,
			Status:       r.Status,
			PurchaseDate: r.PurchaseDate,
			Details:      []PurchaseLine{},
		})
	}
	for _, r := range rows {
		if r.DetailID == nil {
			continue
		}
		i := idx[r.ID]
		out[i].Details = append(out[i].Details, PurchaseLine{
			ID:            *r.DetailID,
			PurchaseID:    r.ID,
			ProductID:     deref(r.ProductID),
			ProductName:   deref(r.ProductName),
			Quantity:      deref(r.Quantity),
			PriceCents:    deref(r.PriceCents),
			SubtotalCents: deref(r.SubtotalCents),
		})
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
