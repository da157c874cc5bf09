// Package report renders run artifacts: the per-case throughput CSV and the
// per-case summary log that downstream aggregation picks up.
package report

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Metric is one named numeric measurement in a perf report
type Metric struct {
	Name  string
	Value int64
}

// WritePerfCSV writes a delimited tabular record to path: one header row
// naming the metrics, one data row with their values. The first column is
// always the case name.
func WritePerfCSV(path string, caseName string, metrics []Metric) error {
	if len(metrics) == 0 {
		return fmt.Errorf("no metrics to report")
	}

	header := table.Row{"case"}
	row := table.Row{caseName}
	for _, m := range metrics {
		header = append(header, m.Name)
		row = append(row, m.Value)
	}

	t := table.NewWriter()
	t.AppendHeader(header)
	t.AppendRow(row)

	if err := os.WriteFile(path, []byte(t.RenderCSV()+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing perf report: %w", err)
	}
	return nil
}
