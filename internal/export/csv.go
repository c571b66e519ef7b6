// Package export renders report aggregates as CSV downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"bizdash/internal/core"
)

const dateLayout = "2006-01-02"

// WriteMonthlySeries writes one row per month followed by a totals row.
func WriteMonthlySeries(w io.Writer, series core.MonthlySeries, locale string) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write([]string{"Month", "Label", "Units sold", "Profit"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	summary := core.Summarize(series)
	for _, b := range series.Buckets {
		row := []string{
			b.Key.String(),
			b.Key.LabelWithYear(locale),
			strconv.Itoa(b.UnitsSold),
			b.Profit.String(),
		}
		if err := csvWriter.Write(row); err != nil {
			return err
		}
	}
	if err := csvWriter.Write([]string{"Total", "", strconv.Itoa(summary.TotalUnits), summary.TotalProfit.String()}); err != nil {
		return err
	}
	if skipped := series.Skipped.Total(); skipped > 0 {
		if err := csvWriter.Write([]string{"Skipped sales", "", strconv.Itoa(skipped), ""}); err != nil {
			return err
		}
	}

	return flush(csvWriter)
}

// WriteCategoryBreakdown writes one row per category.
func WriteCategoryBreakdown(w io.Writer, breakdown []core.CategoryCount) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write([]string{"Category", "Products"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, c := range breakdown {
		if err := csvWriter.Write([]string{c.Category, strconv.Itoa(c.Count)}); err != nil {
			return err
		}
	}

	return flush(csvWriter)
}

// WriteCustomerPurchases writes the purchase lines of one customer and a
// closing total row.
func WriteCustomerPurchases(w io.Writer, summary core.PurchaseSummary) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write([]string{"Date", "Product", "Amount", "Unit price", "Line total"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range summary.Purchases {
		row := []string{
			p.Date.UTC().Format(dateLayout),
			p.ProductName,
			strconv.Itoa(p.Amount),
			p.Price.String(),
			p.LineTotal.String(),
		}
		if err := csvWriter.Write(row); err != nil {
			return err
		}
	}
	if err := csvWriter.Write([]string{"Total", "", "", "", summary.TotalSpent.String()}); err != nil {
		return err
	}

	return flush(csvWriter)
}

func flush(w *csv.Writer) error {
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
