package stocktaking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var countHeaderAliases = map[string]string{
	"item":             "item_id",
	"item id":          "item_id",
	"id":               "item_id",
	"batch":            "batch_id",
	"batch id":         "batch_id",
	"lot":              "batch_id",
	"lot number":       "batch_id",
	"counted":          "counted",
	"counted quantity": "counted",
	"count":            "counted",
	"quantity":         "counted",
	"qty":              "counted",
}

// CountRow is one parsed line of a count sheet. Row is the 1-based sheet row.
type CountRow struct {
	Row      int
	ItemID   string
	BatchID  string
	Quantity decimal.Decimal
}

// ParseCountSheet reads the first sheet of an xlsx workbook. The header row
// must name a counted quantity column and an item or batch column. Rows with
// an empty quantity are skipped.
func ParseCountSheet(reader io.Reader) ([]CountRow, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open count sheet: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("count sheet has no sheets")
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("count sheet is empty")
	}

	cols := mapCountColumns(rows[0])
	if _, ok := cols["counted"]; !ok {
		return nil, errors.New("missing required column: counted quantity")
	}
	_, hasItem := cols["item_id"]
	_, hasBatch := cols["batch_id"]
	if !hasItem && !hasBatch {
		return nil, errors.New("missing required column: item id or batch")
	}

	out := make([]CountRow, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		raw := strings.TrimSpace(cell(cells, cols, "counted"))
		if raw == "" {
			continue
		}
		qty, err := parseCountQuantity(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d invalid counted quantity %q", index+1, raw)
		}
		row := CountRow{
			Row:      index + 1,
			ItemID:   strings.TrimSpace(cell(cells, cols, "item_id")),
			BatchID:  strings.TrimSpace(cell(cells, cols, "batch_id")),
			Quantity: qty,
		}
		if row.ItemID == "" && row.BatchID == "" {
			return nil, fmt.Errorf("row %d has neither item id nor batch", index+1)
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, errors.New("count sheet has no counted rows")
	}
	return out, nil
}

var commaGrouping = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+$`)

// parseCountQuantity accepts both "1,250.5" and "1 250,5". Whichever of
// comma or dot comes last is the decimal separator. A lone comma is a
// decimal separator unless it groups exactly three digits ("1,250").
func parseCountQuantity(raw string) (decimal.Decimal, error) {
	value := strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "").Replace(raw)
	comma := strings.LastIndex(value, ",")
	dot := strings.LastIndex(value, ".")
	switch {
	case comma < 0:
	case dot > comma:
		value = strings.ReplaceAll(value, ",", "")
	case dot >= 0:
		value = strings.ReplaceAll(value, ".", "")
		value = strings.Replace(value, ",", ".", 1)
	case commaGrouping.MatchString(value):
		value = strings.ReplaceAll(value, ",", "")
	case strings.Count(value, ",") == 1:
		value = strings.Replace(value, ",", ".", 1)
	default:
		return decimal.Decimal{}, fmt.Errorf("ambiguous separators in %q", raw)
	}
	return decimal.NewFromString(value)
}

func mapCountColumns(header []string) map[string]int {
	mapped := make(map[string]int)
	for idx, col := range header {
		canonical, ok := countHeaderAliases[normalizeHeader(col)]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", " ")
	return strings.Join(strings.Fields(value), " ")
}

func cell(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// RowError explains why an imported row was not recorded.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportReport summarises a count sheet import.
type ImportReport struct {
	Rows     int        `json:"rows"`
	Recorded int        `json:"recorded"`
	Errors   []RowError `json:"errors,omitempty"`
}

// ImportCounts records every row of a count sheet against the items of the
// stocktaking. Rows are matched by item id, or by batch when the id is
// blank. Row level failures are reported, not fatal.
func (s *Service) ImportCounts(ctx context.Context, stocktakingID string, reader io.Reader, actorID int64) (ImportReport, error) {
	rows, err := ParseCountSheet(reader)
	if err != nil {
		return ImportReport{}, fmt.Errorf("%w: %v", ErrInvalidSheet, err)
	}
	items, err := s.repo.ListItems(ctx, stocktakingID)
	if err != nil {
		return ImportReport{}, fmt.Errorf("stocktaking: list items: %w", err)
	}
	byID := make(map[string]Item, len(items))
	byBatch := make(map[string][]Item)
	for _, item := range items {
		byID[item.ID] = item
		if item.BatchID != "" {
			byBatch[item.BatchID] = append(byBatch[item.BatchID], item)
		}
	}

	report := ImportReport{Rows: len(rows)}
	for _, row := range rows {
		itemID, reason := matchRow(row, byID, byBatch)
		if reason != "" {
			report.Errors = append(report.Errors, RowError{Row: row.Row, Reason: reason})
			continue
		}
		_, err := s.RecordCount(ctx, RecordCountInput{ItemID: itemID, Quantity: row.Quantity, ActorID: actorID})
		if err != nil {
			if errors.Is(err, ErrStocktakingCompleted) {
				return report, err
			}
			report.Errors = append(report.Errors, RowError{Row: row.Row, Reason: err.Error()})
			continue
		}
		report.Recorded++
	}
	return report, nil
}

func matchRow(row CountRow, byID map[string]Item, byBatch map[string][]Item) (string, string) {
	if row.ItemID != "" {
		item, ok := byID[row.ItemID]
		if !ok {
			return "", fmt.Sprintf("item %s is not part of this stocktaking", row.ItemID)
		}
		if row.BatchID != "" && item.BatchID != row.BatchID {
			return "", fmt.Sprintf("item %s belongs to batch %q, not %q", row.ItemID, item.BatchID, row.BatchID)
		}
		return item.ID, ""
	}
	matches := byBatch[row.BatchID]
	switch len(matches) {
	case 0:
		return "", fmt.Sprintf("batch %s is not part of this stocktaking", row.BatchID)
	case 1:
		return matches[0].ID, ""
	default:
		return "", fmt.Sprintf("batch %s matches %d items, give the item id", row.BatchID, len(matches))
	}
}
