package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func checkOutputFormat(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use %s or %s)", format, outputTable, outputJSON)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
