package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ResolutionPolicy decides what an aggregation does with records it cannot use.
type ResolutionPolicy int

const (
	// PolicyReport aggregates what resolves and reports the rest in a SkipReport.
	PolicyReport ResolutionPolicy = iota
	// PolicyStrict fails the whole aggregation with an *IntegrityError.
	PolicyStrict
)

// PriceSource decides which price a sale is valued at.
type PriceSource int

const (
	// PriceCurrent uses the product's current price.
	PriceCurrent PriceSource = iota
	// PriceAtSale uses the price recorded on the sale, falling back to the
	// current price for sales without one.
	PriceAtSale
)

// SkipReason says why a sale was left out of an aggregate.
type SkipReason string

const (
	SkipMissingProduct SkipReason = "missing_product"
	SkipInvalidPrice   SkipReason = "invalid_price"
)

type (
	AggregateOptions struct {
		Policy      ResolutionPolicy
		PriceSource PriceSource
	}

	SkippedSale struct {
		SaleID    string     `json:"saleId"`
		ProductID string     `json:"productId"`
		Reason    SkipReason `json:"reason"`
	}

	// SkipReport counts the sales an aggregate could not fully use.
	SkipReport struct {
		MissingProduct int           `json:"missingProduct"`
		InvalidPrice   int           `json:"invalidPrice"`
		Sales          []SkippedSale `json:"sales,omitempty"`
	}

	// Resolution is the explicit found/missing outcome of joining a sale to
	// its product.
	Resolution struct {
		Sale    Sale
		Product Product
		Found   bool
	}

	MonthlyBucket struct {
		Key       MonthKey
		UnitsSold int
		Profit    Money
	}

	MonthlySeries struct {
		Buckets []MonthlyBucket
		Skipped SkipReport
	}

	CategoryCount struct {
		Category string `json:"category"`
		Count    int    `json:"count"`
	}

	CustomerPurchase struct {
		SaleID      string    `json:"saleId"`
		ProductID   string    `json:"productId"`
		ProductName string    `json:"productName"`
		Date        time.Time `json:"date"`
		Amount      int       `json:"amount"`
		Price       Money     `json:"price"`
		LineTotal   Money     `json:"lineTotal"`
	}

	PurchaseSummary struct {
		CustomerID string             `json:"customerId"`
		Purchases  []CustomerPurchase `json:"purchases"`
		TotalSpent Money              `json:"totalSpent"`
		Skipped    SkipReport         `json:"skipped"`
	}
)

// IntegrityError is returned under PolicyStrict when any sale was skipped.
type IntegrityError struct {
	Skipped SkipReport
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("aggregation aborted: %d sale(s) with missing product, %d with invalid price",
		e.Skipped.MissingProduct, e.Skipped.InvalidPrice)
}

// ParseResolutionPolicy accepts "report" and "strict".
func ParseResolutionPolicy(s string) (ResolutionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "report":
		return PolicyReport, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyReport, fmt.Errorf("unknown integrity policy %q", s)
	}
}

// ParsePriceSource accepts "current" and "at-sale".
func ParsePriceSource(s string) (PriceSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return PriceCurrent, nil
	case "at-sale":
		return PriceAtSale, nil
	default:
		return PriceCurrent, fmt.Errorf("unknown price policy %q", s)
	}
}

func (r *SkipReport) add(s Sale, reason SkipReason) {
	switch reason {
	case SkipMissingProduct:
		r.MissingProduct++
	case SkipInvalidPrice:
		r.InvalidPrice++
	}
	r.Sales = append(r.Sales, SkippedSale{SaleID: s.ID, ProductID: s.ProductID, Reason: reason})
}

// Total is the number of skipped sales.
func (r SkipReport) Total() int {
	return r.MissingProduct + r.InvalidPrice
}

// UnitPrice returns the price the sale is valued at. The boolean is false
// when the product is missing or its price is invalid.
func (r Resolution) UnitPrice(src PriceSource) (Money, bool) {
	if !r.Found {
		return Money{}, false
	}
	if src == PriceAtSale && r.Sale.UnitPrice != nil {
		return *r.Sale.UnitPrice, true
	}
	return r.Product.Price, r.Product.PriceValid
}

// IndexProducts maps products by id. Later duplicates win.
func IndexProducts(products []Product) map[string]Product {
	index := make(map[string]Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return index
}

// ResolveSales joins every sale to its product through one index.
func ResolveSales(sales []Sale, products []Product) []Resolution {
	return resolveWith(IndexProducts(products), sales)
}

func resolveWith(index map[string]Product, sales []Sale) []Resolution {
	out := make([]Resolution, 0, len(sales))
	for _, s := range sales {
		p, ok := index[s.ProductID]
		out = append(out, Resolution{Sale: s, Product: p, Found: ok})
	}
	return out
}

// BuildMonthlySeries groups sales by calendar month, ordered chronologically.
//
// Units count every sale whose product resolves. Profit adds amount x price
// for those with a usable price. Sales with a missing product contribute
// nothing; sales with an invalid price contribute units only. Both are
// listed in the series' SkipReport.
func BuildMonthlySeries(sales []Sale, products []Product, opts AggregateOptions) (MonthlySeries, error) {
	var skipped SkipReport
	buckets := make(map[MonthKey]*MonthlyBucket)

	for _, r := range ResolveSales(sales, products) {
		if !r.Found {
			skipped.add(r.Sale, SkipMissingProduct)
			continue
		}
		key := MonthKeyOf(r.Sale.Date)
		b, ok := buckets[key]
		if !ok {
			b = &MonthlyBucket{Key: key}
			buckets[key] = b
		}
		b.UnitsSold += r.Sale.Amount

		price, ok := r.UnitPrice(opts.PriceSource)
		if !ok {
			skipped.add(r.Sale, SkipInvalidPrice)
			continue
		}
		b.Profit = b.Profit.Add(price.Mul(r.Sale.Amount))
	}

	if opts.Policy == PolicyStrict && skipped.Total() > 0 {
		return MonthlySeries{}, &IntegrityError{Skipped: skipped}
	}

	out := make([]MonthlyBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })

	return MonthlySeries{Buckets: out, Skipped: skipped}, nil
}

// BuildCategoryBreakdown counts product listings per category. Categories
// are compared verbatim; an empty category is counted under "".
func BuildCategoryBreakdown(products []Product) []CategoryCount {
	counts := make(map[string]int)
	for _, p := range products {
		counts[p.Category]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for category, n := range counts {
		out = append(out, CategoryCount{Category: category, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// ResolveCustomerPurchases lists a customer's purchases in input order with
// the total spent. Sales whose product is missing or has an invalid price
// produce no line and no partial total; they are listed in Skipped.
//
// An empty customerID returns ErrMissingCustomerID; callers should send the
// user back to customer selection instead of aggregating.
func ResolveCustomerPurchases(customerID string, sales []Sale, products []Product, opts AggregateOptions) (PurchaseSummary, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return PurchaseSummary{}, ErrMissingCustomerID
	}

	summary := PurchaseSummary{
		CustomerID: customerID,
		Purchases:  make([]CustomerPurchase, 0),
	}
	index := IndexProducts(products)

	for _, s := range sales {
		if s.CustomerID != customerID {
			continue
		}
		r := Resolution{Sale: s}
		r.Product, r.Found = index[s.ProductID]
		if !r.Found {
			summary.Skipped.add(s, SkipMissingProduct)
			continue
		}
		price, ok := r.UnitPrice(opts.PriceSource)
		if !ok {
			summary.Skipped.add(s, SkipInvalidPrice)
			continue
		}
		line := price.Mul(s.Amount)
		summary.Purchases = append(summary.Purchases, CustomerPurchase{
			SaleID:      s.ID,
			ProductID:   s.ProductID,
			ProductName: r.Product.Name,
			Date:        s.Date,
			Amount:      s.Amount,
			Price:       price,
			LineTotal:   line,
		})
		summary.TotalSpent = summary.TotalSpent.Add(line)
	}

	if opts.Policy == PolicyStrict && summary.Skipped.Total() > 0 {
		return PurchaseSummary{}, &IntegrityError{Skipped: summary.Skipped}
	}
	return summary, nil
}

// SortPurchasesByDate orders purchases oldest first, keeping input order for ties.
func SortPurchasesByDate(purchases []CustomerPurchase) {
	sort.SliceStable(purchases, func(i, j int) bool {
		return purchases[i].Date.Before(purchases[j].Date)
	})
}

// SortCategoryCountsByCount orders categories by descending count, then name.
func SortCategoryCountsByCount(counts []CategoryCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Category < counts[j].Category
	})
}
