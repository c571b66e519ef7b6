package http

import (
	"net/http"
	"sync/atomic"

	"bizdash/internal/amqp"
	"bizdash/internal/core"
	"bizdash/internal/log"
)

// respondChanged answers a successful write. API clients get the record
// (or 204), htmx gets triggers so lists refresh, plain forms are redirected
// back to the list.
func (s *Server) respondChanged(w http.ResponseWriter, r *http.Request, collection, id string, op amqp.Operation, listPath, message string, body any) {
	atomic.AddInt64(&s.appMetrics.writes, 1)

	switch {
	case wantsJSON(r):
		switch {
		case body == nil:
			w.WriteHeader(http.StatusNoContent)
		case op == amqp.OpCreated:
			w.Header().Set("Location", listPath+"/"+id)
			writeJSON(w, http.StatusCreated, body)
		default:
			writeJSON(w, http.StatusOK, body)
		}
	case isHTMX(r):
		resp := NewHTMXResponse().
			TriggerRecordChanged(collection, id, string(op)).
			TriggerSuccessNotification(message)
		switch op {
		case amqp.OpCreated:
			resp.TriggerFormReset()
		case amqp.OpUpdated:
			resp.Header("HX-Redirect", listPath)
		}
		resp.Write(w)
	default:
		http.Redirect(w, r, listPath, http.StatusSeeOther)
	}
}

// parseBody parses the request body, answering 400 itself on failure.
func (s *Server) parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).WarnContext(r.Context(), "Unreadable request body",
			log.FieldError, err.Error(),
			log.FieldErrorType, log.ErrorTypeValidation,
			log.FieldOperation, log.OpParse)
		if wantsJSON(r) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		} else {
			BadRequestError("Malformed request").Write(w)
		}
		return nil, false
	}
	return p, true
}

type productsPage struct {
	pageData
	Query    string
	Products []core.Product
	Form     core.Product
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	term := searchTerm(r)
	products, err := s.catalog.ListProducts(r.Context(), term)
	if err != nil {
		s.writeError(w, r, err, log.OpList, core.CollectionProducts)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, toProductViews(products))
		return
	}
	data := productsPage{pageData: s.page("Products", "products"), Query: term, Products: products}
	if isHTMX(r) {
		s.render(w, r, "products_table", data)
		return
	}
	s.render(w, r, "products.html", data)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead, core.CollectionProducts)
		return
	}
	writeJSON(w, http.StatusOK, toProductView(product))
}

func (s *Server) handleEditProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead, core.CollectionProducts)
		return
	}
	s.render(w, r, "product_edit.html", productsPage{pageData: s.page("Edit product", "products"), Form: product})
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	product, err := p.ParseProduct()
	if err != nil {
		s.writeError(w, r, err, log.OpCreate, core.CollectionProducts)
		return
	}
	created, err := s.catalog.CreateProduct(r.Context(), product)
	if err != nil {
		s.writeError(w, r, err, log.OpCreate, core.CollectionProducts)
		return
	}
	s.respondChanged(w, r, core.CollectionProducts, created.ID, amqp.OpCreated, "/products",
		"Product "+created.Name+" saved", toProductView(created))
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	product, err := p.ParseProduct()
	if err != nil {
		s.writeError(w, r, err, log.OpUpdate, core.CollectionProducts)
		return
	}
	product.ID = r.PathValue("id")
	if err := s.catalog.UpdateProduct(r.Context(), product); err != nil {
		s.writeError(w, r, err, log.OpUpdate, core.CollectionProducts)
		return
	}
	s.respondChanged(w, r, core.CollectionProducts, product.ID, amqp.OpUpdated, "/products",
		"Product "+product.Name+" updated", toProductView(product))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.catalog.DeleteProduct(r.Context(), id); err != nil {
		s.writeError(w, r, err, log.OpDelete, core.CollectionProducts)
		return
	}
	s.respondChanged(w, r, core.CollectionProducts, id, amqp.OpDeleted, "/products", "Product deleted", nil)
}

type customersPage struct {
	pageData
	Query     string
	Customers []core.Customer
	Form      core.Customer
}

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	term := searchTerm(r)
	customers, err := s.catalog.ListCustomers(r.Context(), term)
	if err != nil {
		s.writeError(w, r, err, log.OpList, core.CollectionCustomers)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, toCustomerViews(customers))
		return
	}
	data := customersPage{pageData: s.page("Customers", "customers"), Query: term, Customers: customers}
	if isHTMX(r) {
		s.render(w, r, "customers_table", data)
		return
	}
	s.render(w, r, "customers.html", data)
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := s.catalog.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead, core.CollectionCustomers)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerView(customer))
}

func (s *Server) handleEditCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := s.catalog.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead, core.CollectionCustomers)
		return
	}
	s.render(w, r, "customer_edit.html", customersPage{pageData: s.page("Edit customer", "customers"), Form: customer})
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	created, err := s.catalog.CreateCustomer(r.Context(), p.ParseCustomer())
	if err != nil {
		s.writeError(w, r, err, log.OpCreate, core.CollectionCustomers)
		return
	}
	s.respondChanged(w, r, core.CollectionCustomers, created.ID, amqp.OpCreated, "/customers",
		"Customer "+created.Name+" saved", toCustomerView(created))
}

func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	customer := p.ParseCustomer()
	customer.ID = r.PathValue("id")
	if err := s.catalog.UpdateCustomer(r.Context(), customer); err != nil {
		s.writeError(w, r, err, log.OpUpdate, core.CollectionCustomers)
		return
	}
	s.respondChanged(w, r, core.CollectionCustomers, customer.ID, amqp.OpUpdated, "/customers",
		"Customer "+customer.Name+" updated", toCustomerView(customer))
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.catalog.DeleteCustomer(r.Context(), id); err != nil {
		s.writeError(w, r, err, log.OpDelete, core.CollectionCustomers)
		return
	}
	s.respondChanged(w, r, core.CollectionCustomers, id, amqp.OpDeleted, "/customers", "Customer deleted", nil)
}
