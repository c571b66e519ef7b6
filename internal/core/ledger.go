package core

import "strings"

// Fallback names for sales whose references no longer resolve.
const (
	UnknownProductName  = "Unknown product"
	UnknownCustomerName = "Unknown customer"
)

// SaleLine is a sale joined with display names and its value.
type SaleLine struct {
	Sale         Sale
	ProductName  string
	CustomerName string
	UnitPrice    Money
	LineTotal    Money
	// Priced is false when the product is missing or its price is invalid;
	// LineTotal is zero then.
	Priced bool
}

// BuildSalesLedger joins every sale with product and customer names, in
// input order. Unresolved references get the Unknown* names.
func BuildSalesLedger(sales []Sale, products []Product, customers []Customer, opts AggregateOptions) []SaleLine {
	productIndex := IndexProducts(products)
	customerNames := make(map[string]string, len(customers))
	for _, c := range customers {
		customerNames[c.ID] = c.Name
	}

	lines := make([]SaleLine, 0, len(sales))
	for _, r := range resolveWith(productIndex, sales) {
		line := SaleLine{Sale: r.Sale, ProductName: UnknownProductName, CustomerName: UnknownCustomerName}
		if r.Found {
			line.ProductName = r.Product.Name
		}
		if name, ok := customerNames[r.Sale.CustomerID]; ok {
			line.CustomerName = name
		}
		if price, ok := r.UnitPrice(opts.PriceSource); ok {
			line.UnitPrice = price
			line.LineTotal = price.Mul(r.Sale.Amount)
			line.Priced = true
		}
		lines = append(lines, line)
	}
	return lines
}

// FilterSalesLedger keeps lines whose product or customer name contains term,
// case-insensitively. An empty term keeps everything.
func FilterSalesLedger(lines []SaleLine, term string) []SaleLine {
	term = normalizeTerm(term)
	if term == "" {
		return lines
	}
	out := make([]SaleLine, 0, len(lines))
	for _, l := range lines {
		if containsFold(l.ProductName, term) || containsFold(l.CustomerName, term) {
			out = append(out, l)
		}
	}
	return out
}

// FilterProducts matches on product name.
func FilterProducts(products []Product, term string) []Product {
	term = normalizeTerm(term)
	if term == "" {
		return products
	}
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if containsFold(p.Name, term) {
			out = append(out, p)
		}
	}
	return out
}

// FilterCustomers matches on name, email, phone or address.
func FilterCustomers(customers []Customer, term string) []Customer {
	term = normalizeTerm(term)
	if term == "" {
		return customers
	}
	out := make([]Customer, 0, len(customers))
	for _, c := range customers {
		if containsFold(c.Name, term) || containsFold(c.Email, term) ||
			containsFold(c.Phone, term) || containsFold(c.Address, term) {
			out = append(out, c)
		}
	}
	return out
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

func containsFold(s, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}
