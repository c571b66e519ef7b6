// This file implements request body parsing and the conversion of form or
// JSON fields into domain records.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bizdash/internal/core"
	"bizdash/internal/records"
)

const maxBodyBytes = 1 << 20

var errInvalidDate = errors.New("invalid date")

// FieldError reports a field whose value could not be parsed.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// RequestBodyParser reads a JSON or form-encoded body once and serves
// field lookups from it. HTMX sends forms, API clients send JSON.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the request body, up to 1 MiB.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' || strings.Contains(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was sent at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseProduct builds a product from the body. Price accepts "." or ","
// as decimal separator.
func (p *RequestBodyParser) ParseProduct() (core.Product, error) {
	product := core.Product{
		Name:     p.Get("name"),
		Category: p.Get("category"),
		Brand:    p.Get("brand"),
		RawPrice: p.Get("price"),
	}

	price, err := core.ParsePrice(product.RawPrice)
	if err != nil {
		return core.Product{}, &FieldError{Field: "price", Err: core.ErrInvalidPrice}
	}
	product.Price = price
	product.PriceValid = true

	stock, err := records.IntValue(p.Get("stock"))
	if err != nil {
		return core.Product{}, &FieldError{Field: "stock", Err: core.ErrInvalidStock}
	}
	product.Stock = stock
	return product, nil
}

// ParseCustomer builds a customer from the body.
func (p *RequestBodyParser) ParseCustomer() core.Customer {
	return core.Customer{
		Name:    p.Get("name"),
		Email:   p.Get("email"),
		Phone:   p.Get("phone"),
		Address: p.Get("address"),
	}
}

// ParseSale builds a sale from the body. A missing date is left zero for
// the catalog to fill in.
func (p *RequestBodyParser) ParseSale() (core.Sale, error) {
	sale := core.Sale{
		ProductID:  p.Get("productId"),
		CustomerID: p.Get("customerId"),
	}

	amount, err := strconv.Atoi(p.Get("amount"))
	if err != nil {
		return core.Sale{}, &FieldError{Field: "amount", Err: core.ErrInvalidAmount}
	}
	sale.Amount = amount

	if raw := p.Get("date"); raw != "" {
		date, err := records.TimeValue(raw)
		if err != nil {
			return core.Sale{}, &FieldError{Field: "date", Err: errInvalidDate}
		}
		sale.Date = date
	}
	return sale, nil
}

// formatDateInput renders t for an <input type="date">.
func formatDateInput(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
