package http

import (
	"time"

	"bizdash/internal/core"
)

// JSON shapes of the records served by the API.

type productView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Price      core.Money `json:"price"`
	PriceValid bool       `json:"priceValid"`
	RawPrice   string     `json:"rawPrice,omitempty"`
	Category   string     `json:"category"`
	Brand      string     `json:"brand"`
	Stock      int        `json:"stock"`
}

func toProductView(p core.Product) productView {
	v := productView{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		PriceValid: p.PriceValid,
		Category:   p.Category,
		Brand:      p.Brand,
		Stock:      p.Stock,
	}
	if !p.PriceValid {
		v.RawPrice = p.RawPrice
	}
	return v
}

func toProductViews(products []core.Product) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, toProductView(p))
	}
	return out
}

type customerView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func toCustomerView(c core.Customer) customerView {
	return customerView{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address}
}

func toCustomerViews(customers []core.Customer) []customerView {
	out := make([]customerView, 0, len(customers))
	for _, c := range customers {
		out = append(out, toCustomerView(c))
	}
	return out
}

type saleView struct {
	ID         string      `json:"id"`
	ProductID  string      `json:"productId"`
	CustomerID string      `json:"customerId"`
	Amount     int         `json:"amount"`
	Date       time.Time   `json:"date"`
	UnitPrice  *core.Money `json:"unitPrice,omitempty"`
}

func toSaleView(s core.Sale) saleView {
	return saleView{
		ID:         s.ID,
		ProductID:  s.ProductID,
		CustomerID: s.CustomerID,
		Amount:     s.Amount,
		Date:       s.Date,
		UnitPrice:  s.UnitPrice,
	}
}

type saleLineView struct {
	saleView
	ProductName  string     `json:"productName"`
	CustomerName string     `json:"customerName"`
	LineTotal    core.Money `json:"lineTotal"`
	Priced       bool       `json:"priced"`
}

func toSaleLineViews(lines []core.SaleLine) []saleLineView {
	out := make([]saleLineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, saleLineView{
			saleView:     toSaleView(l.Sale),
			ProductName:  l.ProductName,
			CustomerName: l.CustomerName,
			LineTotal:    l.LineTotal,
			Priced:       l.Priced,
		})
	}
	return out
}
