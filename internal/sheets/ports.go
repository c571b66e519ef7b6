// Package sheets holds the spreadsheet export port and the row layout shared
// by its adapters.
package sheets

import (
	"context"

	"bizdash/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportExporter publishes the monthly series and category breakdown
	// to an external spreadsheet and returns a reference to what it wrote.
	ReportExporter interface {
		ExportMonthlySeries(ctx context.Context, series core.MonthlySeries, breakdown []core.CategoryCount) (ref string, err error)
	}
)

var (
	SeriesHeader   = []any{"Month", "Label", "Units sold", "Profit"}
	CategoryHeader = []any{"Category", "Products"}
)

// SeriesRows lays out the series as a header followed by one row per month.
// Profit is written as a plain decimal so spreadsheets parse it as a number.
func SeriesRows(series core.MonthlySeries, locale string) [][]any {
	rows := make([][]any, 0, len(series.Buckets)+1)
	rows = append(rows, SeriesHeader)
	for _, b := range series.Buckets {
		rows = append(rows, []any{b.Key.String(), b.Key.LabelWithYear(locale), b.UnitsSold, b.Profit.String()})
	}
	return rows
}

// CategoryRows lays out the breakdown as a header followed by one row per
// category.
func CategoryRows(breakdown []core.CategoryCount) [][]any {
	rows := make([][]any, 0, len(breakdown)+1)
	rows = append(rows, CategoryHeader)
	for _, c := range breakdown {
		rows = append(rows, []any{c.Category, c.Count})
	}
	return rows
}
