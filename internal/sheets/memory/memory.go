package memory

import (
	"context"
	"fmt"
	"sync"

	"bizdash/internal/core"
	"bizdash/internal/sheets"
)

// Export is one recorded call to ExportMonthlySeries.
type Export struct {
	Series     [][]any
	Categories [][]any
}

// Exporter keeps exported reports in memory. It backs local runs without
// spreadsheet credentials and the worker tests.
type Exporter struct {
	mu      sync.Mutex
	locale  string
	exports []Export
}

var _ sheets.ReportExporter = (*Exporter)(nil)

func New(locale string) *Exporter {
	return &Exporter{locale: locale}
}

// ExportMonthlySeries records the rows an adapter would write and returns a
// synthetic reference.
func (e *Exporter) ExportMonthlySeries(ctx context.Context, series core.MonthlySeries, breakdown []core.CategoryCount) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exports = append(e.exports, Export{
		Series:     sheets.SeriesRows(series, e.locale),
		Categories: sheets.CategoryRows(breakdown),
	})
	return fmt.Sprintf("mem:%d", len(e.exports)), nil
}

// Exports returns a copy of every recorded export, oldest first.
func (e *Exporter) Exports() []Export {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Export(nil), e.exports...)
}

// Last returns the most recent export.
func (e *Exporter) Last() (Export, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.exports) == 0 {
		return Export{}, false
	}
	return e.exports[len(e.exports)-1], true
}
