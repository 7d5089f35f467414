package main

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/mrp/internal/quotation"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote FILE",
		Short: "Compute the cost of goods sold for a quotation request",
		Example: `  mrpctl quote request.yaml
  mrpctl quote --matrix labor.yaml --cost-per-minute 2 request.json`,
		Args: cobra.ExactArgs(1),
		RunE: runQuote,
	}
	cmd.Flags().String("matrix", "", "Labor matrix YAML file (default: built-in matrix)")
	cmd.Flags().String("cost-per-minute", "", "Labor rate for requests without their own rate")
	return cmd
}

func runQuote(cmd *cobra.Command, args []string) error {
	matrix := quotation.DefaultMatrix()
	if path, _ := cmd.Flags().GetString("matrix"); path != "" {
		loaded, err := quotation.LoadMatrix(path)
		if err != nil {
			return err
		}
		matrix = loaded
	}
	cfg := quotation.ServiceConfig{}
	if raw, _ := cmd.Flags().GetString("cost-per-minute"); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return err
		}
		cfg.CostPerMinute = rate
	}
	service, err := quotation.NewService(matrix, cfg)
	if err != nil {
		return err
	}

	var req quotation.Request
	if err := readDocument(cmd, args[0], &req); err != nil {
		return err
	}
	result, err := service.Quote(req)
	if err != nil {
		return err
	}
	return writeJSON(cmd, result)
}
