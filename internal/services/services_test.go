package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bizdash/internal/amqp"
	"bizdash/internal/core"
	"bizdash/internal/records"
	"bizdash/internal/storage"
	"bizdash/internal/storage/memory"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.RecordChangedMessage
	err  error
}

func (f *fakePublisher) PublishRecordChanged(_ context.Context, msg *amqp.RecordChangedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

type fixture struct {
	catalog   *CatalogService
	reports   *ReportService
	publisher *fakePublisher
	store     *memory.Store
}

func newFixture(t *testing.T, opts core.AggregateOptions) fixture {
	t.Helper()
	store := memory.New()
	repo := records.NewRepository(store, nil)
	reports := NewReportService(repo, ReportConfig{Options: opts, CacheTTL: time.Hour}, nil)
	pub := &fakePublisher{}
	catalog := NewCatalogService(repo, pub, reports, nil)
	catalog.now = func() time.Time { return time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC) }
	return fixture{catalog: catalog, reports: reports, publisher: pub, store: store}
}

func mustProduct(t *testing.T, f fixture, name, category string, cents int64) core.Product {
	t.Helper()
	p, err := f.catalog.CreateProduct(context.Background(), core.Product{
		Name: name, Category: category, Price: core.MoneyFromCents(cents), PriceValid: true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func mustCustomer(t *testing.T, f fixture, name string) core.Customer {
	t.Helper()
	c, err := f.catalog.CreateCustomer(context.Background(), core.Customer{Name: name, Email: name + "@example.com"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}

func TestCreateSaleChecksReferences(t *testing.T) {
	f := newFixture(t, core.AggregateOptions{})
	ctx := context.Background()
	p := mustProduct(t, f, "Coffee", "Drinks", 1000)
	c := mustCustomer(t, f, "ana")

	_, err := f.catalog.CreateSale(ctx, core.Sale{ProductID: "nope", CustomerID: c.ID, Amount: 1})
	if !errors.Is(err, ErrUnknownProduct) || !IsReferenceError(err) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
	_, err = f.catalog.CreateSale(ctx, core.Sale{ProductID: p.ID, CustomerID: "nope", Amount: 1})
	if !errors.Is(err, ErrUnknownCustomer) {
		t.Fatalf("expected ErrUnknownCustomer, got %v", err)
	}
	_, err = f.catalog.CreateSale(ctx, core.Sale{ProductID: p.ID, CustomerID: c.ID, Amount: 0})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	sale, err := f.catalog.CreateSale(ctx, core.Sale{ProductID: p.ID, CustomerID: c.ID, Amount: 2})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.UnitPrice == nil || sale.UnitPrice.String() != "10.00" {
		t.Fatalf("expected price snapshot 10.00, got %v", sale.UnitPrice)
	}
	if sale.Date.Month() != time.May {
		t.Fatalf("expected default date from clock, got %s", sale.Date)
	}
}

func TestUpdateSaleKeepsPriceUnlessProductChanges(t *testing.T) {
	f := newFixture(t, core.AggregateOptions{PriceSource: core.PriceAtSale})
	ctx := context.Background()
	coffee := mustProduct(t, f, "Coffee", "Drinks", 1000)
	tea := mustProduct(t, f, "Tea", "Drinks", 400)
	c := mustCustomer(t, f, "ana")

	sale, err := f.catalog.CreateSale(ctx, core.Sale{ProductID: coffee.ID, CustomerID: c.ID, Amount: 1})
	if err != nil {
		t.Fatal(err)
	}

	coffee.Price = core.MoneyFromCents(1500)
	if err := f.catalog.UpdateProduct(ctx, coffee); err != nil {
		t.Fatal(err)
	}
	sale.Amount = 3
	if err := f.catalog.UpdateSale(ctx, sale); err != nil {
		t.Fatal(err)
	}
	got, _ := f.catalog.GetSale(ctx, sale.ID)
	if got.UnitPrice.String() != "10.00" || got.Amount != 3 {
		t.Fatalf("price should stay 10.00 with amount 3, got %s x %d", got.UnitPrice, got.Amount)
	}

	sale.ProductID = tea.ID
	if err := f.catalog.UpdateSale(ctx, sale); err != nil {
		t.Fatal(err)
	}
	got, _ = f.catalog.GetSale(ctx, sale.ID)
	if got.UnitPrice.String() != "4.00" {
		t.Fatalf("price should follow the new product, got %s", got.UnitPrice)
	}

	if err := f.catalog.UpdateSale(ctx, core.Sale{ID: "missing", ProductID: tea.ID, CustomerID: c.ID, Amount: 1}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWritesPublishAndInvalidate(t *testing.T) {
	f := newFixture(t, core.AggregateOptions{})
	ctx := context.Background()
	p := mustProduct(t, f, "Coffee", "Drinks", 1000)
	c := mustCustomer(t, f, "ana")

	d, err := f.reports.Dashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Series.Buckets) != 0 {
		t.Fatalf("expected empty series, got %+v", d.Series.Buckets)
	}

	f.publisher.err = errors.New("broker down")
	if _, err := f.catalog.CreateSale(ctx, core.Sale{ProductID: p.ID, CustomerID: c.ID, Amount: 2}); err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}

	d, err = f.reports.Dashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Series.Buckets) != 1 || d.Summary.TotalProfit.String() != "20.00" {
		t.Fatalf("dashboard should be recomputed after the write, got %+v", d.Summary)
	}

	if len(f.publisher.msgs) != 3 {
		t.Fatalf("expected 3 published messages, got %d", len(f.publisher.msgs))
	}
	last := f.publisher.msgs[2]
	if last.Collection != core.CollectionSales || last.Operation != amqp.OpCreated {
		t.Fatalf("unexpected message %+v", last)
	}
}

func TestDashboardIsCached(t *testing.T) {
	f := newFixture(t, core.AggregateOptions{})
	ctx := context.Background()
	mustProduct(t, f, "Coffee", "Drinks", 1000)

	if _, err := f.reports.Dashboard(ctx); err != nil {
		t.Fatal(err)
	}
	// a write behind the service's back is not seen until invalidation
	if err := f.store.Put(ctx, core.CollectionProducts, "x", map[string]any{"name": "Tea", "category": "Tea"}); err != nil {
		t.Fatal(err)
	}
	d, _ := f.reports.Dashboard(ctx)
	if len(d.Categories) != 1 {
		t.Fatalf("expected cached breakdown, got %+v", d.Categories)
	}
	if f.reports.CacheStats()["dashboard"].Hits != 1 {
		t.Fatalf("expected one cache hit, got %+v", f.reports.CacheStats())
	}

	f.reports.Invalidate()
	d, _ = f.reports.Dashboard(ctx)
	if len(d.Categories) != 2 {
		t.Fatalf("expected fresh breakdown, got %+v", d.Categories)
	}
}

func TestDashboardStrictPolicy(t *testing.T) {
	f := newFixture(t, core.AggregateOptions{Policy: core.PolicyStrict})
	ctx := context.Background()
	p := mustProduct(t, f, "Coffee", "Drinks", 1000)
	c := mustCustomer(t, f, "ana")
	if _, err := f.catalog.CreateSale(ctx, core.Sale{ProductID: p.ID, CustomerID: c.ID, Amount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := f.catalog.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	_, err := f.reports.Dashboard(ctx)
	var integrity *core.IntegrityError
	if !errors.As(err, &integrity) || integrity.Skipped.MissingProduct != 1 {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestCustomerPurchases(t *testing.T) {
	f := newFixture(t, core.AggregateOptions{})
	ctx := context.Background()
	coffee := mustProduct(t, f, "Coffee", "Drinks", 1000)
	tea := mustProduct(t, f, "Tea", "Drinks", 500)
	ana := mustCustomer(t, f, "ana")
	bia := mustCustomer(t, f, "bia")

	for _, s := range []core.Sale{
		{ProductID: coffee.ID, CustomerID: ana.ID, Amount: 3},
		{ProductID: tea.ID, CustomerID: ana.ID, Amount: 2},
		{ProductID: tea.ID, CustomerID: bia.ID, Amount: 7},
	} {
		if _, err := f.catalog.CreateSale(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := f.reports.CustomerPurchases(ctx, ana.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Purchases) != 2 || summary.TotalSpent.String() != "40.00" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if _, err := f.reports.CustomerPurchases(ctx, " "); !errors.Is(err, core.ErrMissingCustomerID) {
		t.Fatalf("expected ErrMissingCustomerID, got %v", err)
	}

	empty, err := f.reports.CustomerPurchases(ctx, "nobody")
	if err != nil || len(empty.Purchases) != 0 || !empty.TotalSpent.IsZero() {
		t.Fatalf("unknown customer should have an empty summary, got %+v %v", empty, err)
	}
}

func TestSalesLedgerAndSearch(t *testing.T) {
	f := newFixture(t, core.AggregateOptions{})
	ctx := context.Background()
	coffee := mustProduct(t, f, "Coffee", "Drinks", 1000)
	ana := mustCustomer(t, f, "ana")
	if _, err := f.catalog.CreateSale(ctx, core.Sale{ProductID: coffee.ID, CustomerID: ana.ID, Amount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := f.catalog.DeleteCustomer(ctx, ana.ID); err != nil {
		t.Fatal(err)
	}

	lines, err := f.reports.SalesLedger(ctx, "")
	if err != nil || len(lines) != 1 {
		t.Fatalf("unexpected ledger %+v %v", lines, err)
	}
	if lines[0].CustomerName != core.UnknownCustomerName || lines[0].ProductName != "Coffee" {
		t.Fatalf("unexpected line %+v", lines[0])
	}

	products, err := f.catalog.ListProducts(ctx, "cof")
	if err != nil || len(products) != 1 {
		t.Fatalf("search should find coffee, got %v %v", products, err)
	}
	customers, err := f.catalog.ListCustomers(ctx, "")
	if err != nil || len(customers) != 0 {
		t.Fatalf("expected no customers, got %v %v", customers, err)
	}
}

func TestValidationBeforeStorage(t *testing.T) {
	f := newFixture(t, core.AggregateOptions{})
	ctx := context.Background()
	if _, err := f.catalog.CreateProduct(ctx, core.Product{Name: "X"}); !errors.Is(err, core.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := f.catalog.CreateCustomer(ctx, core.Customer{Name: "X", Email: "bad"}); !errors.Is(err, core.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if len(f.publisher.msgs) != 0 {
		t.Fatalf("rejected writes must not publish, got %d", len(f.publisher.msgs))
	}
}

func TestChartData(t *testing.T) {
	d := Dashboard{
		Series: core.MonthlySeries{Buckets: []core.MonthlyBucket{
			{Key: core.MonthKey{Year: 2023, Month: time.December}, UnitsSold: 1, Profit: core.MoneyFromCents(100)},
			{Key: core.MonthKey{Year: 2024, Month: time.February}, UnitsSold: 2, Profit: core.MoneyFromCents(300)},
		}},
		Categories: []core.CategoryCount{{Category: "Drinks", Count: 2}},
	}
	d.Summary = core.Summarize(d.Series)

	chart := d.Chart(core.LocalePortuguese)
	if len(chart.Labels) != 2 || chart.Labels[0] != "dez 2023" || chart.Labels[1] != "fev 2024" {
		t.Fatalf("unexpected labels %v", chart.Labels)
	}
	if chart.Months[1] != "2024-02" || chart.UnitsSold[1] != 2 || chart.Profit[1].String() != "3.00" {
		t.Fatalf("unexpected arrays %+v", chart)
	}
	if chart.BestMonth != "fev 2024" || chart.CategoryLabels[0] != "Drinks" {
		t.Fatalf("unexpected summary fields %+v", chart)
	}

	single := Dashboard{Series: core.MonthlySeries{Buckets: d.Series.Buckets[1:]}}.Chart(core.LocaleEnglish)
	if single.Labels[0] != "Feb" {
		t.Fatalf("single-year labels omit the year, got %v", single.Labels)
	}
}

// gatedStore holds the first read of one collection open after the data
// has been fetched, so a write can land while a report is being built.
type gatedStore struct {
	*memory.Store
	collection string
	armed      atomic.Bool
	entered    chan struct{}
	release    chan struct{}
}

func newGatedStore(collection string) *gatedStore {
	g := &gatedStore{
		Store:      memory.New(),
		collection: collection,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	return g
}

func (g *gatedStore) hold(collection string) {
	if collection == g.collection && g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
}

func (g *gatedStore) ListAll(ctx context.Context, collection string) ([]storage.Document, error) {
	docs, err := g.Store.ListAll(ctx, collection)
	g.hold(collection)
	return docs, err
}

func (g *gatedStore) QueryByField(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	docs, err := g.Store.QueryByField(ctx, collection, field, value)
	g.hold(collection)
	return docs, err
}

func newGatedFixture(t *testing.T, store *gatedStore) fixture {
	t.Helper()
	repo := records.NewRepository(store, nil)
	reports := NewReportService(repo, ReportConfig{CacheTTL: time.Hour}, nil)
	pub := &fakePublisher{}
	catalog := NewCatalogService(repo, pub, reports, nil)
	return fixture{catalog: catalog, reports: reports, publisher: pub, store: store.Store}
}

func TestDashboardBuiltDuringWriteIsNotCached(t *testing.T) {
	store := newGatedStore(core.CollectionProducts)
	f := newGatedFixture(t, store)
	ctx := context.Background()

	store.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := f.reports.Dashboard(ctx)
		done <- err
	}()
	<-store.entered

	mustProduct(t, f, "Coffee", "Drinks", 1000)
	close(store.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	d, err := f.reports.Dashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Categories) != 1 || d.Categories[0].Category != "Drinks" {
		t.Fatalf("dashboard after completed write = %+v", d.Categories)
	}
}

func TestPurchasesBuiltDuringWriteAreNotCached(t *testing.T) {
	store := newGatedStore(core.CollectionSales)
	f := newGatedFixture(t, store)
	ctx := context.Background()
	coffee := mustProduct(t, f, "Coffee", "Drinks", 1000)
	ana := mustCustomer(t, f, "ana")

	store.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := f.reports.CustomerPurchases(ctx, ana.ID)
		done <- err
	}()
	<-store.entered

	if _, err := f.catalog.CreateSale(ctx, core.Sale{ProductID: coffee.ID, CustomerID: ana.ID, Amount: 2}); err != nil {
		t.Fatal(err)
	}
	close(store.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	summary, err := f.reports.CustomerPurchases(ctx, ana.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Purchases) != 1 || summary.TotalSpent.String() != "20.00" {
		t.Fatalf("purchases after completed write = %+v", summary)
	}
}

func TestDashboardSurvivesCancelledCaller(t *testing.T) {
	store := newGatedStore(core.CollectionProducts)
	f := newGatedFixture(t, store)
	mustProduct(t, f, "Coffee", "Drinks", 1000)

	store.armed.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.reports.Dashboard(ctx)
		first <- err
	}()
	<-store.entered

	second := make(chan error, 1)
	go func() {
		_, err := f.reports.Dashboard(context.Background())
		second <- err
	}()
	cancel()
	close(store.release)

	if err := <-first; err != nil {
		t.Fatalf("shared computation failed with its first caller: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("waiting caller failed: %v", err)
	}
}
