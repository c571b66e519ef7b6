package http

import (
	"net/http"
	"time"

	"bizdash/internal/amqp"
	"bizdash/internal/core"
	"bizdash/internal/log"
)

type salesPage struct {
	pageData
	Query     string
	Lines     []core.SaleLine
	Products  []core.Product
	Customers []core.Customer
	Form      core.Sale
	Today     string
}

// withChoices loads the product and customer lists the sale form offers.
func (s *Server) withChoices(r *http.Request, data *salesPage) error {
	products, err := s.catalog.ListProducts(r.Context(), "")
	if err != nil {
		return err
	}
	customers, err := s.catalog.ListCustomers(r.Context(), "")
	if err != nil {
		return err
	}
	data.Products, data.Customers = products, customers
	data.Today = formatDateInput(time.Now())
	return nil
}

// handleListSales lists the sales ledger: every sale with its product and
// customer names, filtered by q.
func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	term := searchTerm(r)
	lines, err := s.reports.SalesLedger(r.Context(), term)
	if err != nil {
		s.writeError(w, r, err, log.OpList, core.CollectionSales)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, toSaleLineViews(lines))
		return
	}
	data := salesPage{pageData: s.page("Sales", "sales"), Query: term, Lines: lines}
	if isHTMX(r) {
		s.render(w, r, "sales_table", data)
		return
	}
	if err := s.withChoices(r, &data); err != nil {
		s.writeError(w, r, err, log.OpList, core.CollectionSales)
		return
	}
	s.render(w, r, "sales.html", data)
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := s.catalog.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead, core.CollectionSales)
		return
	}
	writeJSON(w, http.StatusOK, toSaleView(sale))
}

func (s *Server) handleEditSale(w http.ResponseWriter, r *http.Request) {
	sale, err := s.catalog.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead, core.CollectionSales)
		return
	}
	data := salesPage{pageData: s.page("Edit sale", "sales"), Form: sale}
	if err := s.withChoices(r, &data); err != nil {
		s.writeError(w, r, err, log.OpRead, core.CollectionSales)
		return
	}
	s.render(w, r, "sale_edit.html", data)
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	sale, err := p.ParseSale()
	if err != nil {
		s.writeError(w, r, err, log.OpCreate, core.CollectionSales)
		return
	}
	created, err := s.catalog.CreateSale(r.Context(), sale)
	if err != nil {
		s.writeError(w, r, err, log.OpCreate, core.CollectionSales)
		return
	}
	s.respondChanged(w, r, core.CollectionSales, created.ID, amqp.OpCreated, "/sales",
		"Sale recorded", toSaleView(created))
}

func (s *Server) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	sale, err := p.ParseSale()
	if err != nil {
		s.writeError(w, r, err, log.OpUpdate, core.CollectionSales)
		return
	}
	sale.ID = r.PathValue("id")
	if err := s.catalog.UpdateSale(r.Context(), sale); err != nil {
		s.writeError(w, r, err, log.OpUpdate, core.CollectionSales)
		return
	}
	updated, err := s.catalog.GetSale(r.Context(), sale.ID)
	if err != nil {
		s.writeError(w, r, err, log.OpRead, core.CollectionSales)
		return
	}
	s.respondChanged(w, r, core.CollectionSales, sale.ID, amqp.OpUpdated, "/sales",
		"Sale updated", toSaleView(updated))
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.catalog.DeleteSale(r.Context(), id); err != nil {
		s.writeError(w, r, err, log.OpDelete, core.CollectionSales)
		return
	}
	s.respondChanged(w, r, core.CollectionSales, id, amqp.OpDeleted, "/sales", "Sale deleted", nil)
}
