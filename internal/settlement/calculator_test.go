package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, expected string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(got), "expected %s got %s", expected, got.String())
}

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func TestCompareTolerance(t *testing.T) {
	tol := dec("0.01")
	cases := []struct {
		a, b string
		want int
	}{
		{"100", "100", 0},
		{"100.01", "100", 0},
		{"99.99", "100", 0},
		{"100.011", "100", 1},
		{"99.989", "100", -1},
		{"-5", "5", -1},
		{"0.1", "0.3", -1},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Compare(dec(tc.a), dec(tc.b), tol), "%s vs %s", tc.a, tc.b)
		require.Equal(t, -tc.want, Compare(dec(tc.b), dec(tc.a), tol), "%s vs %s", tc.b, tc.a)
	}
}

func TestDeriveStatusBasicStates(t *testing.T) {
	unpaid := DeriveStatus(Invoice{Total: dec("1000")}, DefaultTolerance, now)
	require.Equal(t, StatusUnpaid, unpaid.Status)
	requireDecimal(t, "1000", unpaid.Remaining)

	partial := DeriveStatus(Invoice{Total: dec("1000"), TotalPaid: dec("250")}, DefaultTolerance, now)
	require.Equal(t, StatusPartiallyPaid, partial.Status)
	requireDecimal(t, "750", partial.Remaining)
	require.True(t, partial.Overpayment.IsZero())

	paid := DeriveStatus(Invoice{Total: dec("1000"), TotalPaid: dec("999.995")}, DefaultTolerance, now)
	require.Equal(t, StatusPaid, paid.Status)
	require.True(t, paid.Overpayment.IsZero())
}

func TestDeriveStatusFloatResidueIsNotOverpayment(t *testing.T) {
	st := DeriveStatus(Invoice{Total: dec("0.3"), TotalPaid: dec("0.30000000000000004")}, DefaultTolerance, now)
	require.Equal(t, StatusPaid, st.Status)
	require.True(t, st.Overpayment.IsZero())

	over := DeriveStatus(Invoice{Total: dec("100"), TotalPaid: dec("100.5")}, DefaultTolerance, now)
	requireDecimal(t, "0.5", over.Overpayment)
	requireDecimal(t, "-0.5", over.Remaining)
}

func TestDeriveStatusZeroTotalIsPaid(t *testing.T) {
	st := DeriveStatus(Invoice{}, DefaultTolerance, now)
	require.Equal(t, StatusPaid, st.Status)
	require.True(t, st.Remaining.IsZero())
}

func TestDeriveStatusCorrectionInvoiceKeepsNegativeRemaining(t *testing.T) {
	st := DeriveStatus(Invoice{Total: dec("-100")}, DefaultTolerance, now)
	require.Equal(t, StatusPaid, st.Status)
	requireDecimal(t, "-100", st.Remaining)
	requireDecimal(t, "0", st.TotalSettled)
	requireDecimal(t, "100", st.Overpayment)
}

func TestDeriveStatusAllocationsWinOverSettledAdvance(t *testing.T) {
	inv := Invoice{
		Total:                  dec("1000"),
		TotalPaid:              dec("100"),
		SettledAdvancePayments: dec("900"),
		ProformAllocation: []ProformaAllocation{
			{ProformaID: "PF-1", Amount: dec("200")},
			{ProformaID: "PF-2", Amount: dec("50")},
		},
	}
	st := DeriveStatus(inv, DefaultTolerance, now)
	requireDecimal(t, "250", st.AdvancePayments)
	requireDecimal(t, "350", st.TotalSettled)
	require.Equal(t, StatusPartiallyPaid, st.Status)

	inv.ProformAllocation = nil
	st = DeriveStatus(inv, DefaultTolerance, now)
	requireDecimal(t, "900", st.AdvancePayments)
	require.Equal(t, StatusPaid, st.Status)
}

func TestDeriveStatusRequiredAdvancePercentage(t *testing.T) {
	inv := Invoice{Total: dec("1000"), TotalPaid: dec("300"), RequiredAdvancePaymentPercentage: dec("30")}
	st := DeriveStatus(inv, DefaultTolerance, now)
	requireDecimal(t, "300", st.Target)
	require.Equal(t, StatusPaid, st.Status)
	requireDecimal(t, "700", st.Remaining)
}

func TestDeriveStatusOverdueFlag(t *testing.T) {
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	st := DeriveStatus(Invoice{Total: dec("100"), DueDate: &yesterday}, DefaultTolerance, now)
	require.True(t, st.IsOverdue)
	require.Equal(t, StatusUnpaid, st.Status)
	require.Equal(t, StatusOverdue, st.DisplayStatus())

	st = DeriveStatus(Invoice{Total: dec("100"), TotalPaid: dec("10"), DueDate: &yesterday}, DefaultTolerance, now)
	require.True(t, st.IsOverdue)
	require.Equal(t, StatusPartiallyPaid, st.Status)

	st = DeriveStatus(Invoice{Total: dec("100"), DueDate: &tomorrow}, DefaultTolerance, now)
	require.False(t, st.IsOverdue)

	st = DeriveStatus(Invoice{Total: dec("100"), TotalPaid: dec("100"), DueDate: &yesterday}, DefaultTolerance, now)
	require.False(t, st.IsOverdue)
	require.Equal(t, StatusPaid, st.DisplayStatus())

	st = DeriveStatus(Invoice{Total: dec("100")}, DefaultTolerance, now)
	require.False(t, st.IsOverdue)
}

func TestDeriveStatusMonotonicInTotalPaid(t *testing.T) {
	rank := map[Status]int{StatusUnpaid: 0, StatusPartiallyPaid: 1, StatusPaid: 2}
	inv := Invoice{Total: dec("500"), RequiredAdvancePaymentPercentage: dec("40")}
	prev := -1
	for paid := 0; paid <= 600; paid += 7 {
		inv.TotalPaid = decimal.NewFromInt(int64(paid))
		r := rank[DeriveStatus(inv, DefaultTolerance, now).Status]
		require.GreaterOrEqual(t, r, prev, "paid=%d", paid)
		prev = r
	}
}

func TestDeriveStatusIsIdempotent(t *testing.T) {
	due := now.Add(-time.Hour)
	inv := Invoice{
		Total:             dec("1234.56"),
		TotalPaid:         dec("200"),
		ProformAllocation: []ProformaAllocation{{ProformaID: "PF-9", Amount: dec("34.56")}},
		DueDate:           &due,
	}
	first := DeriveStatus(inv, DefaultTolerance, now)
	second := DeriveStatus(inv, DefaultTolerance, now)
	require.Equal(t, first.Status, second.Status)
	require.True(t, first.Remaining.Equal(second.Remaining))
	require.True(t, first.TotalSettled.Equal(second.TotalSettled))
	require.Equal(t, first.IsOverdue, second.IsOverdue)
}

func TestDeriveStatusEndToEndAdvanceScenario(t *testing.T) {
	yesterday := now.Add(-24 * time.Hour)
	inv := Invoice{
		Total:                            dec("1000"),
		TotalPaid:                        dec("400"),
		ProformAllocation:                []ProformaAllocation{{ProformaID: "PF-1", Amount: dec("300")}},
		RequiredAdvancePaymentPercentage: dec("50"),
		DueDate:                          &yesterday,
	}
	st := DeriveStatus(inv, DefaultTolerance, now)
	requireDecimal(t, "500", st.Target)
	requireDecimal(t, "700", st.TotalSettled)
	require.Equal(t, StatusPaid, st.Status)
	require.False(t, st.IsOverdue)
	requireDecimal(t, "300", st.Remaining)
	requireDecimal(t, "200", st.Overpayment)
}

func TestDeriveProformaAvailability(t *testing.T) {
	proforma := Invoice{ID: "PF-1", Total: dec("1000"), TotalPaid: dec("400"), IsProforma: true}
	avail := DeriveProformaAvailability(proforma, dec("0"), DefaultTolerance)
	require.True(t, avail.RequiresPayment)
	require.False(t, avail.FullyPaid)
	require.True(t, avail.Available.IsZero())

	proforma.TotalPaid = dec("999.999")
	avail = DeriveProformaAvailability(proforma, dec("650"), DefaultTolerance)
	require.False(t, avail.RequiresPayment)
	require.True(t, avail.FullyPaid)
	requireDecimal(t, "350", avail.Available)
}

func TestAppliedToProformaOnlyCountsMatchingAllocations(t *testing.T) {
	invoices := []Invoice{
		{ID: "INV-1", ProformAllocation: []ProformaAllocation{{ProformaID: "PF-1", Amount: dec("100")}, {ProformaID: "PF-2", Amount: dec("40")}}},
		{ID: "INV-2", ProformAllocation: []ProformaAllocation{{ProformaID: "PF-1", Amount: dec("25.5")}}},
		{ID: "INV-3"},
	}
	requireDecimal(t, "125.5", AppliedToProforma("PF-1", invoices))
	requireDecimal(t, "40", AppliedToProforma("PF-2", invoices))
	requireDecimal(t, "0", AppliedToProforma("PF-3", invoices))
}
