package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"bizdash/internal/core"
	"bizdash/internal/export"
	"bizdash/internal/log"
	"bizdash/internal/storage"
)

type purchasesPage struct {
	pageData
	CustomerID   string
	CustomerName string
	Summary      core.PurchaseSummary
}

// handlePurchases shows one customer's purchases. Without a customerId
// the browser is sent back to the customer list.
func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	customerID := sanitizeInput(r.URL.Query().Get("customerId"))
	if customerID == "" {
		if wantsJSON(r) {
			s.writeError(w, r, core.ErrMissingCustomerID, log.OpRead, core.CollectionSales)
			return
		}
		http.Redirect(w, r, "/customers", http.StatusSeeOther)
		return
	}

	summary, err := s.reports.CustomerPurchases(r.Context(), customerID)
	if err != nil {
		s.writeError(w, r, err, log.OpAggregate, core.CollectionSales)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, summary)
		return
	}

	name := core.UnknownCustomerName
	customer, err := s.catalog.GetCustomer(r.Context(), customerID)
	switch {
	case err == nil:
		name = customer.Name
	case !errors.Is(err, storage.ErrNotFound):
		s.writeError(w, r, err, log.OpRead, core.CollectionCustomers)
		return
	}

	s.render(w, r, "purchases.html", purchasesPage{
		pageData:     s.page("Purchases", "customers"),
		CustomerID:   customerID,
		CustomerName: name,
		Summary:      summary,
	})
}

func csvHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
}

// writeCSV renders the file into memory first so a failure still gets an
// error status instead of a truncated download.
func (s *Server) writeCSV(w http.ResponseWriter, r *http.Request, filename string, write func(io.Writer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		s.writeError(w, r, err, log.OpExport, "")
		return
	}
	csvHeaders(w, filename)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportMonthly(w http.ResponseWriter, r *http.Request) {
	d, err := s.reports.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpExport, core.CollectionSales)
		return
	}
	s.writeCSV(w, r, "monthly-series.csv", func(out io.Writer) error {
		return export.WriteMonthlySeries(out, d.Series, s.locale)
	})
}

func (s *Server) handleExportCategories(w http.ResponseWriter, r *http.Request) {
	d, err := s.reports.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpExport, core.CollectionProducts)
		return
	}
	s.writeCSV(w, r, "categories.csv", func(out io.Writer) error {
		return export.WriteCategoryBreakdown(out, d.Categories)
	})
}

func (s *Server) handleExportPurchases(w http.ResponseWriter, r *http.Request) {
	customerID := sanitizeInput(r.URL.Query().Get("customerId"))
	if customerID == "" {
		http.Redirect(w, r, "/customers", http.StatusSeeOther)
		return
	}
	summary, err := s.reports.CustomerPurchases(r.Context(), customerID)
	if err != nil {
		s.writeError(w, r, err, log.OpExport, core.CollectionSales)
		return
	}
	s.writeCSV(w, r, "purchases-"+safeFilename(customerID)+".csv", func(out io.Writer) error {
		return export.WriteCustomerPurchases(out, summary)
	})
}

// safeFilename keeps ids usable inside a Content-Disposition header.
func safeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "customer"
	}
	return string(out)
}
