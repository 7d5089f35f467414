package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mrpctl",
		Short: "Offline settlement, stocktaking and quotation calculators",
		Long: `mrpctl evaluates JSON or YAML documents with the same calculators the
MRP service uses, without a database or Redis.

Pass "-" as the file to read from standard input.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("yaml", false, "Force YAML input regardless of the file extension")
	root.PersistentFlags().Bool("compact", false, "Print compact JSON instead of indented JSON")
	root.AddCommand(newQuoteCmd(), newSettleCmd(), newReconcileCmd())
	return root
}

// readDocument loads path into dest. YAML input is normalised to JSON first
// so the decimal and lenient decoders see the same shapes either way.
func readDocument(cmd *cobra.Command, path string, dest any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	forceYAML, _ := cmd.Flags().GetBool("yaml")
	ext := strings.ToLower(filepath.Ext(path))
	if forceYAML || ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if compact, _ := cmd.Flags().GetBool("compact"); !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
