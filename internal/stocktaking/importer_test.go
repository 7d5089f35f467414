package stocktaking

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildSheet(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseCountSheet(t *testing.T) {
	buf := buildSheet(t, [][]any{
		{"Item ID", "Lot Number", "Counted Quantity"},
		{"IT-1", "LOT-1", "1,250.5"},
		{"", "LOT-2", 7},
		{"IT-3", "", ""},
	})
	rows, err := ParseCountSheet(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 2, rows[0].Row)
	require.Equal(t, "IT-1", rows[0].ItemID)
	requireDecimal(t, "1250.5", rows[0].Quantity)
	require.Equal(t, "LOT-2", rows[1].BatchID)
	requireDecimal(t, "7", rows[1].Quantity)
}

func TestParseCountQuantitySeparators(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"12,5", "12.5"},
		{"1,250", "1250"},
		{"1,250,000", "1250000"},
		{"1,250.5", "1250.5"},
		{"1.250,5", "1250.5"},
		{"1 250,75", "1250.75"},
		{"-0,5", "-0.5"},
		{"42", "42"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := parseCountQuantity(tc.raw)
			require.NoError(t, err)
			requireDecimal(t, tc.want, got)
		})
	}

	_, err := parseCountQuantity("1,25,0")
	require.Error(t, err)
	_, err = parseCountQuantity("abc")
	require.Error(t, err)
}

func TestParseCountSheetDecimalComma(t *testing.T) {
	rows, err := ParseCountSheet(buildSheet(t, [][]any{
		{"Item ID", "Counted"},
		{"IT-1", "12,5"},
	}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	requireDecimal(t, "12.5", rows[0].Quantity)
}

func TestParseCountSheetRejectsBadInput(t *testing.T) {
	_, err := ParseCountSheet(buildSheet(t, [][]any{{"Item", "Note"}, {"IT-1", "x"}}))
	require.ErrorContains(t, err, "counted quantity")

	_, err = ParseCountSheet(buildSheet(t, [][]any{{"Qty", "Note"}, {"3", "x"}}))
	require.ErrorContains(t, err, "item id or batch")

	_, err = ParseCountSheet(buildSheet(t, [][]any{{"Item", "Qty"}, {"IT-1", "many"}}))
	require.ErrorContains(t, err, "row 2")

	_, err = ParseCountSheet(bytes.NewBufferString("not a workbook"))
	require.Error(t, err)
}

func TestServiceImportCounts(t *testing.T) {
	f := newFixture(
		Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("10")},
		Item{ID: "IT-2", BatchID: "LOT-2", SystemQuantity: dec("10")},
		Item{ID: "IT-3", BatchID: "LOT-3", SystemQuantity: dec("10"), CountedQuantity: ndec("10"), Accepted: true},
	)
	buf := buildSheet(t, [][]any{
		{"item", "batch", "qty"},
		{"IT-1", "", "9"},
		{"", "LOT-2", "11"},
		{"IT-3", "", "4"},
		{"IT-9", "", "1"},
		{"IT-1", "LOT-2", "1"},
	})

	report, err := f.svc.ImportCounts(context.Background(), "ST-1", buf, 5)
	require.NoError(t, err)
	require.Equal(t, 5, report.Rows)
	require.Equal(t, 2, report.Recorded)
	require.Len(t, report.Errors, 3)
	require.Equal(t, 4, report.Errors[0].Row)
	require.Contains(t, report.Errors[0].Reason, "already accepted")
	require.Equal(t, 5, report.Errors[1].Row)

	requireDecimal(t, "9", f.repo.item("IT-1").CountedQuantity.Decimal)
	requireDecimal(t, "11", f.repo.item("IT-2").CountedQuantity.Decimal)
}

func TestServiceImportCountsInvalidSheet(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ImportCounts(context.Background(), "ST-1", bytes.NewBufferString("garbage"), 0)
	require.ErrorIs(t, err, ErrInvalidSheet)
}
