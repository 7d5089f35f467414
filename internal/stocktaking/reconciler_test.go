package stocktaking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ndec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func requireDecimal(t *testing.T, expected string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(got), "expected %s got %s", expected, got.String())
}

func TestComputeDiscrepancy(t *testing.T) {
	_, ok := ComputeDiscrepancy(Item{SystemQuantity: dec("10")})
	require.False(t, ok)

	d, ok := ComputeDiscrepancy(Item{SystemQuantity: dec("10"), CountedQuantity: ndec("7.5"), UnitPrice: ndec("4")})
	require.True(t, ok)
	requireDecimal(t, "-2.5", d.Quantity)
	require.True(t, d.Value.Valid)
	requireDecimal(t, "-10", d.Value.Decimal)

	d, ok = ComputeDiscrepancy(Item{SystemQuantity: dec("10"), CountedQuantity: ndec("12")})
	require.True(t, ok)
	requireDecimal(t, "2", d.Quantity)
	require.False(t, d.Value.Valid)
}

func TestCheckReservationImpactRoundTrip(t *testing.T) {
	item := Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("80"), UnitPrice: ndec("2")}
	reservations := []Reservation{
		{ID: "R-1", BatchID: "LOT-1", Quantity: dec("30")},
		{ID: "R-2", BatchID: "LOT-1", Quantity: dec("20")},
		{ID: "R-3", BatchID: "LOT-2", Quantity: dec("500")},
	}

	res := CheckReservationImpact(item, dec("30"), reservations)
	require.NotNil(t, res)
	requireDecimal(t, "50", res.TotalReserved)
	requireDecimal(t, "20", res.Shortage)
	requireDecimal(t, "80", res.CurrentQuantity)
	requireDecimal(t, "30", res.NewQuantity)
	requireDecimal(t, "-50", res.Discrepancy)
	require.True(t, res.DifferenceValue.Valid)
	requireDecimal(t, "-100", res.DifferenceValue.Decimal)
	require.Len(t, res.Reservations, 2)
	require.Equal(t, "LOT-1", res.BatchID)

	require.Nil(t, CheckReservationImpact(item, dec("60"), reservations))
	require.Nil(t, CheckReservationImpact(item, dec("50"), reservations))
}

func TestCheckReservationImpactIgnoresItemsWithoutBatch(t *testing.T) {
	item := Item{ID: "IT-2", SystemQuantity: dec("10")}
	reservations := []Reservation{{ID: "R-1", BatchID: "", Quantity: dec("100")}}
	require.Nil(t, CheckReservationImpact(item, dec("0"), reservations))
}

func TestAggregateStocktakingImpact(t *testing.T) {
	items := []Item{
		{ID: "A", BatchID: "LOT-A", SystemQuantity: dec("10"), CountedQuantity: ndec("4")},
		{ID: "B", BatchID: "LOT-B", SystemQuantity: dec("10"), CountedQuantity: ndec("9")},
		{ID: "C", BatchID: "LOT-C", SystemQuantity: dec("10")},
		{ID: "D", SystemQuantity: dec("10"), CountedQuantity: ndec("0")},
	}
	byBatch := map[string][]Reservation{
		"LOT-A": {{ID: "R-A", BatchID: "LOT-A", Quantity: dec("6")}},
		"LOT-B": {{ID: "R-B", BatchID: "LOT-B", Quantity: dec("5")}},
		"LOT-C": {{ID: "R-C", BatchID: "LOT-C", Quantity: dec("50")}},
	}

	results := AggregateStocktakingImpact(items, byBatch)
	require.Len(t, results, 1)
	require.Equal(t, "A", results[0].ItemID)
	requireDecimal(t, "2", results[0].Shortage)

	require.Empty(t, AggregateStocktakingImpact(nil, byBatch))
}
