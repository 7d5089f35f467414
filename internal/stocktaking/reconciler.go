package stocktaking

import "github.com/shopspring/decimal"

// ComputeDiscrepancy returns counted minus system quantity. ok is false while
// the item is pending.
func ComputeDiscrepancy(item Item) (Discrepancy, bool) {
	if !item.CountedQuantity.Valid {
		return Discrepancy{}, false
	}
	qty := item.CountedQuantity.Decimal.Sub(item.SystemQuantity)
	d := Discrepancy{Quantity: qty}
	if item.UnitPrice.Valid {
		d.Value = decimal.NewNullDecimal(qty.Mul(item.UnitPrice.Decimal))
	}
	return d, true
}

// CheckReservationImpact reports whether setting the item's batch to
// newQuantity leaves less than the reserved total. It returns nil for items
// without a batch and when reservations stay covered. Reservations of other
// batches are ignored.
func CheckReservationImpact(item Item, newQuantity decimal.Decimal, reservations []Reservation) *ReconciliationResult {
	if item.BatchID == "" {
		return nil
	}
	reserved := decimal.Zero
	var matching []Reservation
	for _, r := range reservations {
		if r.BatchID != item.BatchID {
			continue
		}
		reserved = reserved.Add(r.Quantity)
		matching = append(matching, r)
	}
	shortage := reserved.Sub(newQuantity)
	if !shortage.IsPositive() {
		return nil
	}
	diff := newQuantity.Sub(item.SystemQuantity)
	result := &ReconciliationResult{
		ItemID:          item.ID,
		ProductName:     item.ProductName,
		BatchID:         item.BatchID,
		CurrentQuantity: item.SystemQuantity,
		NewQuantity:     newQuantity,
		TotalReserved:   reserved,
		Shortage:        shortage,
		Discrepancy:     diff,
		Reservations:    matching,
	}
	if item.UnitPrice.Valid {
		result.DifferenceValue = decimal.NewNullDecimal(diff.Mul(item.UnitPrice.Decimal))
	}
	return result
}

// AggregateStocktakingImpact checks every counted, lot-tracked item against
// the reservations of its batch and returns the conflicts in item order.
func AggregateStocktakingImpact(items []Item, reservationsByBatch map[string][]Reservation) []ReconciliationResult {
	var out []ReconciliationResult
	for _, item := range items {
		if !item.CountedQuantity.Valid || item.BatchID == "" {
			continue
		}
		if res := CheckReservationImpact(item, item.CountedQuantity.Decimal, reservationsByBatch[item.BatchID]); res != nil {
			out = append(out, *res)
		}
	}
	return out
}
