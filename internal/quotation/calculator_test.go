package quotation

import (
	"encoding/json"
	"errors"
	"testing"

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

func TestTotalWeightGrams(t *testing.T) {
	requireDecimal(t, "1500", TotalWeightGrams([]Component{
		{Quantity: dec("1"), Unit: UnitKilogram},
		{Quantity: dec("500"), Unit: UnitGram},
	}))
	requireDecimal(t, "0.75", TotalWeightGrams([]Component{
		{Quantity: dec("500"), Unit: UnitMilligram},
		{Quantity: dec("250000"), Unit: UnitMicrogram},
		{Quantity: dec("200"), Unit: UnitMillilitre},
		{Quantity: dec("2"), Unit: UnitLitre},
		{Quantity: dec("60"), Unit: UnitCapsule},
		{Quantity: dec("3"), Unit: UnitPiece},
	}))
	require.True(t, TotalWeightGrams(nil).IsZero())
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{"KG": UnitKilogram, " g ": UnitGram, "mcg": UnitMicrogram, "ug": UnitMicrogram, "µg": UnitMicrogram, "szt.": UnitPiece, "caps": UnitCapsule} {
		got, err := ParseUnit(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseUnit("oz")
	var unsupported *UnsupportedUnitError
	require.True(t, errors.As(err, &unsupported))
	require.Equal(t, "oz", unsupported.Unit)

	var c Component
	require.Error(t, json.Unmarshal([]byte(`{"quantity": 1, "unit": "lb"}`), &c))
	require.NoError(t, json.Unmarshal([]byte(`{"quantity": "2.5", "unit": "kg", "unitPrice": 4}`), &c))
	require.Equal(t, UnitKilogram, c.Unit)
	require.True(t, c.Unit.IsMass())
	require.False(t, UnitMillilitre.IsMass())
}

func TestSelectPackFormat(t *testing.T) {
	m := DefaultMatrix()
	cases := map[string]PackFormat{"0": "sachet_50g", "50": "sachet_50g", "50.01": "jar_100g", "250": "jar_250g", "1000": "bag_1kg"}
	for grams, want := range cases {
		got, ok := SelectPackFormat(m, dec(grams))
		require.True(t, ok, grams)
		require.Equal(t, want, got, grams)
	}
	_, ok := SelectPackFormat(m, dec("1000.5"))
	require.False(t, ok)
}

func TestLaborCost(t *testing.T) {
	m := DefaultMatrix()

	labor, err := LaborCost(m, LaborInput{Format: "jar_100g", Quantity: dec("100"), CostPerMinute: dec("1.2")})
	require.NoError(t, err)
	requireDecimal(t, "50", labor.Minutes)
	requireDecimal(t, "60", labor.Cost)
	require.False(t, labor.Estimated)

	labor, err = LaborCost(m, LaborInput{Format: "jar_100g", Flavored: true, Quantity: dec("4"), CostPerMinute: dec("1")})
	require.NoError(t, err)
	requireDecimal(t, "3", labor.Minutes)

	labor, err = LaborCost(m, LaborInput{Format: "jar_100g", Quantity: dec("4"), CostPerMinute: dec("2"), ManualTimeSec: decimal.NewNullDecimal(dec("90"))})
	require.NoError(t, err)
	requireDecimal(t, "6", labor.Minutes)
	requireDecimal(t, "12", labor.Cost)
	require.True(t, labor.Manual)

	labor, err = LaborCost(m, LaborInput{Format: "bag_1kg", Flavored: true, Quantity: dec("10"), CostPerMinute: dec("0.5"), WeightGrams: dec("800")})
	require.NoError(t, err)
	require.True(t, labor.Estimated)
	requireDecimal(t, "16", labor.Minutes)
	requireDecimal(t, "8", labor.Cost)

	_, err = LaborCost(m, LaborInput{Format: "jar_100g", Quantity: dec("-1")})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = LaborCost(m, LaborInput{Format: "jar_100g", Quantity: dec("1"), CostPerMinute: dec("-1")})
	require.ErrorIs(t, err, ErrNegativeInput)
}

func TestTotalCOGS(t *testing.T) {
	components := []Component{
		{Quantity: dec("2"), Unit: UnitKilogram, UnitPrice: dec("12.5")},
		{Quantity: dec("10"), Unit: UnitMillilitre, UnitPrice: dec("0.3")},
	}
	requireDecimal(t, "31", TotalCOGS(components, nil, Labor{Cost: dec("3")}))
	requireDecimal(t, "36", TotalCOGS(components, &Packaging{Quantity: dec("2"), UnitPrice: dec("2.5")}, Labor{Cost: dec("3")}))
}

func TestCalculateFallsBackBeyondBrackets(t *testing.T) {
	res, err := Calculate(DefaultMatrix(), Request{
		Components: []Component{
			{Name: "whey", Quantity: dec("1"), Unit: UnitKilogram, UnitPrice: dec("20")},
			{Name: "cocoa", Quantity: dec("500"), Unit: UnitGram, UnitPrice: dec("0.01")},
		},
		Packaging:     &Packaging{Name: "tub", Quantity: dec("1"), UnitPrice: dec("2.5")},
		Quantity:      dec("10"),
		CostPerMinute: dec("0.5"),
	})
	require.NoError(t, err)
	requireDecimal(t, "1500", res.TotalWeightGrams)
	require.Equal(t, PackFormat(""), res.PackFormat)
	require.True(t, res.Estimated)
	requireDecimal(t, "30", res.LaborMinutes)
	requireDecimal(t, "15", res.LaborCost)
	requireDecimal(t, "25", res.ComponentsCost)
	requireDecimal(t, "2.5", res.PackagingCost)
	requireDecimal(t, "42.5", res.TotalCOGS)
}

func TestCalculateExplicitFormat(t *testing.T) {
	m := DefaultMatrix()
	req := Request{
		Components:    []Component{{Quantity: dec("100"), Unit: UnitGram, UnitPrice: dec("0.1")}},
		Flavored:      true,
		Quantity:      dec("2"),
		CostPerMinute: dec("3"),
		PackFormat:    "jar_250g",
	}
	res, err := Calculate(m, req)
	require.NoError(t, err)
	require.Equal(t, PackFormat("jar_250g"), res.PackFormat)
	requireDecimal(t, "2", res.LaborMinutes)
	requireDecimal(t, "16", res.TotalCOGS)

	req.PackFormat = "crate"
	_, err = Calculate(m, req)
	var unsupported *UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))

	req.PackFormat = ""
	req.Components = []Component{{Quantity: dec("1"), Unit: Unit("pinch")}}
	_, err = Calculate(m, req)
	var unit *UnsupportedUnitError
	require.True(t, errors.As(err, &unit))

	req.Components = nil
	req.Quantity = decimal.Zero
	_, err = Calculate(m, req)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
