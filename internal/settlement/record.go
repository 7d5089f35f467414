package settlement

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/odyssey-erp/mrp/internal/platform/numeric"
)

// Record is the loosely typed document shape produced by the invoice store.
// Every numeric field tolerates absence or garbage; Invoice() applies the
// documented defaults.
type Record struct {
	ID                               string             `json:"id"`
	Number                           string             `json:"number"`
	Total                            numeric.Lenient    `json:"total"`
	TotalPaid                        numeric.Lenient    `json:"totalPaid"`
	ProformAllocation                []AllocationRecord `json:"proformAllocation"`
	SettledAdvancePayments           numeric.Lenient    `json:"settledAdvancePayments"`
	RequiredAdvancePaymentPercentage numeric.Lenient    `json:"requiredAdvancePaymentPercentage"`
	DueDate                          LenientTime        `json:"dueDate"`
	IsProforma                       bool               `json:"isProforma"`
}

// AllocationRecord is the wire shape of a proforma allocation.
type AllocationRecord struct {
	ProformaID string          `json:"proformaId"`
	Amount     numeric.Lenient `json:"amount"`
}

// Invoice normalises the record.
func (r Record) Invoice() Invoice {
	inv := Invoice{
		ID:                               r.ID,
		Number:                           r.Number,
		Total:                            r.Total.Value(),
		TotalPaid:                        r.TotalPaid.Value(),
		SettledAdvancePayments:           r.SettledAdvancePayments.Value(),
		RequiredAdvancePaymentPercentage: r.RequiredAdvancePaymentPercentage.Value(),
		DueDate:                          r.DueDate.Ptr(),
		IsProforma:                       r.IsProforma,
	}
	if len(r.ProformAllocation) > 0 {
		inv.ProformAllocation = make([]ProformaAllocation, 0, len(r.ProformAllocation))
		for _, a := range r.ProformAllocation {
			inv.ProformAllocation = append(inv.ProformAllocation, ProformaAllocation{
				ProformaID: a.ProformaID,
				Amount:     a.Amount.Value(),
			})
		}
	}
	return inv
}

// LenientTime decodes RFC 3339 timestamps, plain dates and
// {"seconds":..,"nanoseconds":..} objects. Anything else decodes to unset.
type LenientTime struct {
	time.Time
	Set bool
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// UnmarshalJSON implements json.Unmarshaler.
func (t *LenientTime) UnmarshalJSON(data []byte) error {
	t.Time, t.Set = time.Time{}, false
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time, t.Set = parsed, true
				return nil
			}
		}
	case '{':
		var ts struct {
			Seconds     int64 `json:"seconds"`
			Nanoseconds int64 `json:"nanoseconds"`
		}
		if err := json.Unmarshal(data, &ts); err == nil && (ts.Seconds != 0 || ts.Nanoseconds != 0) {
			t.Time, t.Set = time.Unix(ts.Seconds, ts.Nanoseconds).UTC(), true
		}
	}
	return nil
}

// Ptr returns nil when unset.
func (t LenientTime) Ptr() *time.Time {
	if !t.Set {
		return nil
	}
	v := t.Time
	return &v
}
