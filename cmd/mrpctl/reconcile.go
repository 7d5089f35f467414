package main

import (
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/mrp/internal/stocktaking"
)

// reconcileInput is a stocktaking snapshot: items with their counts and
// the active reservations of their batches.
type reconcileInput struct {
	Items        []stocktaking.Item        `json:"items"`
	Reservations []stocktaking.Reservation `json:"reservations"`
}

type itemReport struct {
	ItemID      string                   `json:"itemId"`
	ProductName string                   `json:"productName"`
	State       stocktaking.State        `json:"state"`
	Discrepancy *stocktaking.Discrepancy `json:"discrepancy,omitempty"`
}

type reconcileReport struct {
	Items     []itemReport                       `json:"items"`
	Conflicts []stocktaking.ReconciliationResult `json:"conflicts"`
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile FILE",
		Short: "Report count discrepancies and reservation conflicts of a stocktaking snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runReconcile,
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	var in reconcileInput
	if err := readDocument(cmd, args[0], &in); err != nil {
		return err
	}
	byBatch := make(map[string][]stocktaking.Reservation)
	for _, r := range in.Reservations {
		byBatch[r.BatchID] = append(byBatch[r.BatchID], r)
	}

	report := reconcileReport{
		Items:     make([]itemReport, 0, len(in.Items)),
		Conflicts: stocktaking.AggregateStocktakingImpact(in.Items, byBatch),
	}
	if report.Conflicts == nil {
		report.Conflicts = []stocktaking.ReconciliationResult{}
	}
	for i := range in.Items {
		item := in.Items[i]
		row := itemReport{ItemID: item.ID, ProductName: item.ProductName, State: item.State()}
		if d, ok := stocktaking.ComputeDiscrepancy(item); ok {
			row.Discrepancy = &d
		}
		report.Items = append(report.Items, row)
	}
	return writeJSON(cmd, report)
}
