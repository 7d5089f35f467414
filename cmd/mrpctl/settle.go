package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/mrp/internal/settlement"
)

func newSettleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle FILE",
		Short: "Derive settlement status for one invoice or a list of invoices",
		Long: `settle reads invoice documents and prints their derived settlement
status. Proformas in the file get their availability computed from the
allocations of the other invoices in the same file.`,
		Args: cobra.ExactArgs(1),
		RunE: runSettle,
	}
	cmd.Flags().String("tolerance", "", "Comparison tolerance (default 0.01)")
	cmd.Flags().String("as-of", "", "Evaluation date, YYYY-MM-DD (default: today)")
	return cmd
}

func runSettle(cmd *cobra.Command, args []string) error {
	cfg := settlement.ServiceConfig{}
	if raw, _ := cmd.Flags().GetString("tolerance"); raw != "" {
		tol, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid tolerance: %w", err)
		}
		cfg.Tolerance = tol
	}
	if raw, _ := cmd.Flags().GetString("as-of"); raw != "" {
		asOf, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid as-of date. Use YYYY-MM-DD: %w", err)
		}
		cfg.Clock = func() time.Time { return asOf }
	}
	service, err := settlement.NewService(nil, cfg)
	if err != nil {
		return err
	}

	var raw json.RawMessage
	if err := readDocument(cmd, args[0], &raw); err != nil {
		return err
	}
	records, single, err := decodeRecords(raw)
	if err != nil {
		return err
	}

	invoices := make([]settlement.Invoice, 0, len(records))
	for _, rec := range records {
		invoices = append(invoices, rec.Invoice())
	}
	out := make([]settlement.Annotation, 0, len(invoices))
	for _, inv := range invoices {
		applied := decimal.Zero
		if inv.IsProforma {
			applied = settlement.AppliedToProforma(inv.ID, invoices)
		}
		out = append(out, service.Evaluate(inv, applied))
	}
	if single {
		return writeJSON(cmd, out[0])
	}
	return writeJSON(cmd, out)
}

func decodeRecords(raw json.RawMessage) ([]settlement.Record, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []settlement.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, false, err
		}
		return records, false, nil
	}
	var record settlement.Record
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, false, err
	}
	return []settlement.Record{record}, true, nil
}
