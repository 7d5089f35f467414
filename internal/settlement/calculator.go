package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compare returns 0 when a and b are within tol of each other, otherwise the
// sign of a-b.
func Compare(a, b, tol decimal.Decimal) int {
	diff := a.Sub(b)
	if diff.Abs().LessThanOrEqual(tol) {
		return 0
	}
	return diff.Sign()
}

// AdvancePayments returns the proforma allocation sum when allocations exist,
// otherwise the settled advance amount. The two sources are never added.
func AdvancePayments(inv Invoice) decimal.Decimal {
	if len(inv.ProformAllocation) > 0 {
		sum := decimal.Zero
		for _, a := range inv.ProformAllocation {
			sum = sum.Add(a.Amount)
		}
		return sum
	}
	return inv.SettledAdvancePayments
}

// Target is the amount at which the invoice counts as settled.
func Target(inv Invoice) decimal.Decimal {
	if inv.RequiredAdvancePaymentPercentage.IsPositive() {
		return inv.Total.Mul(inv.RequiredAdvancePaymentPercentage).Div(hundred)
	}
	return inv.Total
}

// DeriveStatus computes the settlement status of an invoice as of now.
// Remaining is not clamped: a negative value is a refund owed to the
// customer. Overpayment stays zero unless it exceeds tol.
func DeriveStatus(inv Invoice, tol decimal.Decimal, now time.Time) SettlementStatus {
	advance := AdvancePayments(inv)
	settled := inv.TotalPaid.Add(advance)
	target := Target(inv)

	status := StatusUnpaid
	switch {
	case Compare(settled, target, tol) >= 0:
		status = StatusPaid
	case settled.IsPositive():
		status = StatusPartiallyPaid
	}

	result := SettlementStatus{
		Status:          status,
		TotalSettled:    settled,
		Target:          target,
		AdvancePayments: advance,
		Remaining:       inv.Total.Sub(settled),
		Overpayment:     decimal.Zero,
	}
	if over := settled.Sub(target); over.GreaterThan(tol) {
		result.Overpayment = over
	}
	if status != StatusPaid && inv.DueDate != nil && now.After(*inv.DueDate) {
		result.IsOverdue = true
	}
	return result
}

// DeriveProformaAvailability reports how much of a proforma remains to be
// applied to final invoices. Availability only exists once the proforma
// itself is fully paid.
func DeriveProformaAvailability(inv Invoice, applied, tol decimal.Decimal) ProformaAvailability {
	fullyPaid := Compare(inv.TotalPaid, inv.Total, tol) >= 0
	out := ProformaAvailability{
		FullyPaid: fullyPaid,
		Applied:   applied,
		Available: decimal.Zero,
	}
	if !fullyPaid {
		out.RequiresPayment = true
		return out
	}
	out.Available = inv.Total.Sub(applied)
	return out
}

// AppliedToProforma sums every allocation in invoices that draws on the
// given proforma.
func AppliedToProforma(proformaID string, invoices []Invoice) decimal.Decimal {
	sum := decimal.Zero
	for _, inv := range invoices {
		for _, a := range inv.ProformAllocation {
			if a.ProformaID == proformaID {
				sum = sum.Add(a.Amount)
			}
		}
	}
	return sum
}
