package records

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/core"
	"bizdash/internal/storage"
	"bizdash/internal/storage/memory"
)

func TestDecodeProduct(t *testing.T) {
	p, err := DecodeProduct(storage.Document{ID: "p1", Data: map[string]any{
		"name": "Coffee", "price": "19,99", "category": "Drinks", "stock": json.Number("4"),
	}})
	require.NoError(t, err)
	assert.True(t, p.PriceValid)
	assert.Equal(t, "19.99", p.Price.String())
	assert.Equal(t, 4, p.Stock)
	assert.Equal(t, "19,99", p.RawPrice)

	bad, err := DecodeProduct(storage.Document{ID: "p2", Data: map[string]any{"name": "Tea", "price": "free"}})
	require.NoError(t, err)
	assert.False(t, bad.PriceValid)
	assert.True(t, bad.Price.IsZero())
	assert.Equal(t, "free", bad.RawPrice)

	_, err = DecodeProduct(storage.Document{ID: "p3", Data: map[string]any{"name": "X", "stock": 1.5}})
	assert.ErrorIs(t, err, ErrMalformedRecord)
	_, err = DecodeProduct(storage.Document{ID: "p4", Data: map[string]any{"name": []any{"x"}}})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeLegacyFieldNames(t *testing.T) {
	p, err := DecodeProduct(storage.Document{ID: "p1", Data: map[string]any{
		"name": "Coffee", "price": "19,99", "amount": "12",
	}})
	require.NoError(t, err)
	assert.Equal(t, 12, p.Stock)

	p, err = DecodeProduct(storage.Document{ID: "p2", Data: map[string]any{
		"name": "Tea", "price": 3, "stock": 5, "amount": 9,
	}})
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock, "stock wins over amount")

	c, err := DecodeCustomer(storage.Document{ID: "c1", Data: map[string]any{
		"name": "Ana", "email": "ana@example.com", "endereco": "Rua Augusta 100",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Rua Augusta 100", c.Address)

	_, err = DecodeCustomer(storage.Document{ID: "c2", Data: map[string]any{"name": "Bia", "endereco": []any{1}}})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestTimeValue(t *testing.T) {
	want := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		raw  any
	}{
		{"time", want.In(time.FixedZone("x", 3600))},
		{"rfc3339", "2024-03-05T00:00:00Z"},
		{"date only", "2024-03-05"},
		{"unix seconds", want.Unix()},
		{"unix float", float64(want.Unix())},
		{"unix json number", json.Number("1709596800")},
		{"timestamp map", map[string]any{"seconds": want.Unix(), "nanoseconds": 0}},
		{"firestore map", map[string]any{"_seconds": json.Number("1709596800"), "_nanoseconds": json.Number("0")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TimeValue(tc.raw)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	for _, raw := range []any{nil, "yesterday", time.Time{}, map[string]any{}, true} {
		_, err := TimeValue(raw)
		assert.Error(t, err, "%#v", raw)
	}
}

func TestSaleRoundTripThroughStores(t *testing.T) {
	price := core.MoneyFromCents(250)
	sale := core.Sale{
		ProductID: "p1", CustomerID: "c1", Amount: 3,
		Date:      time.Date(2024, time.July, 1, 9, 30, 0, 0, time.UTC),
		UnitPrice: &price,
	}

	sqlite, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "r.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	for name, store := range map[string]storage.RecordStore{"memory": memory.New(), "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			repo := NewRepository(store, nil)
			ctx := context.Background()
			created, err := repo.CreateSale(ctx, sale)
			require.NoError(t, err)
			require.NotEmpty(t, created.ID)

			got, err := repo.GetSale(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, got.Amount)
			assert.True(t, sale.Date.Equal(got.Date))
			require.NotNil(t, got.UnitPrice)
			assert.Equal(t, "2.50", got.UnitPrice.String())

			byCustomer, err := repo.SalesByCustomer(ctx, "c1")
			require.NoError(t, err)
			assert.Len(t, byCustomer, 1)
		})
	}
}

func seed(t *testing.T, store storage.RecordStore) {
	t.Helper()
	ctx := context.Background()
	docs := map[string][]map[string]any{
		core.CollectionProducts: {
			{"id": "p1", "name": "Coffee", "price": 10, "category": "Drinks"},
			{"id": "p2", "name": "Tea", "price": "5,00", "category": "Drinks"},
		},
		core.CollectionCustomers: {
			{"id": "c1", "name": "Ana", "email": "ana@example.com"},
		},
		core.CollectionSales: {
			{"id": "s1", "productId": "p1", "customerId": "c1", "amount": 3, "date": "2024-07-04"},
			{"id": "s2", "productId": "p2", "customerId": "c1", "amount": 2, "date": "2024-01-09"},
			{"id": "s3", "productId": "p1", "customerId": "c1", "amount": "many", "date": "2024-01-09"},
		},
	}
	for coll, list := range docs {
		for _, d := range list {
			require.NoError(t, store.Put(ctx, coll, d["id"].(string), d))
		}
	}
}

func TestLoadSnapshot(t *testing.T) {
	store := memory.New()
	seed(t, store)
	repo := NewRepository(store, nil)

	snap, err := repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Products, 2)
	assert.Len(t, snap.Customers, 1)
	assert.Len(t, snap.Sales, 2)
	assert.Equal(t, 1, snap.Rejected)

	series, err := core.BuildMonthlySeries(snap.Sales, snap.Products, core.AggregateOptions{})
	require.NoError(t, err)
	summary := core.Summarize(series)
	assert.Equal(t, "40.00", summary.TotalProfit.String())
}

type failingStore struct {
	storage.RecordStore
	failOn string
}

func (f failingStore) ListAll(ctx context.Context, coll string) ([]storage.Document, error) {
	if coll == f.failOn {
		return nil, errors.New("backend unavailable")
	}
	return f.RecordStore.ListAll(ctx, coll)
}

func TestLoadSnapshotFailsWhenAnyFetchFails(t *testing.T) {
	for _, coll := range []string{core.CollectionProducts, core.CollectionCustomers, core.CollectionSales} {
		repo := NewRepository(failingStore{RecordStore: memory.New(), failOn: coll}, nil)
		snap, err := repo.LoadSnapshot(context.Background())
		require.Error(t, err, coll)
		assert.Contains(t, err.Error(), "backend unavailable")
		assert.Empty(t, snap.Sales)
	}
}

func TestProductsByIDsDeduplicates(t *testing.T) {
	store := memory.New()
	seed(t, store)
	repo := NewRepository(store, nil)

	products, err := repo.ProductsByIDs(context.Background(), []string{"p1", "p1", "", "missing", "p2"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0].ID)
}

func TestCRUDNotFound(t *testing.T) {
	repo := NewRepository(memory.New(), nil)
	ctx := context.Background()

	_, err := repo.GetProduct(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateCustomer(ctx, core.Customer{ID: "nope", Name: "x"}), storage.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteSale(ctx, "nope"), storage.ErrNotFound)
}

func TestReportSnapshotRoundTrip(t *testing.T) {
	series := core.MonthlySeries{
		Buckets: []core.MonthlyBucket{
			{Key: core.MonthKey{Year: 2024, Month: time.January}, UnitsSold: 2, Profit: core.MoneyFromCents(1000)},
			{Key: core.MonthKey{Year: 2024, Month: time.July}, UnitsSold: 3, Profit: core.MoneyFromCents(3000)},
		},
		Skipped: core.SkipReport{MissingProduct: 1},
	}
	snap := ReportSnapshot{
		Month:       core.MonthKey{Year: 2024, Month: time.August},
		GeneratedAt: time.Date(2024, time.August, 1, 6, 0, 0, 0, time.UTC),
		Series:      series,
		Categories:  []core.CategoryCount{{Category: "Drinks", Count: 2}},
		Summary:     core.Summarize(series),
	}

	sqlite, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	for name, store := range map[string]storage.RecordStore{"memory": memory.New(), "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			repo := NewRepository(store, nil)
			ctx := context.Background()
			require.NoError(t, repo.SaveReportSnapshot(ctx, snap))
			// saving the same month again replaces it
			require.NoError(t, repo.SaveReportSnapshot(ctx, snap))

			got, err := repo.GetReportSnapshot(ctx, snap.Month)
			require.NoError(t, err)
			assert.Equal(t, snap.Month, got.Month)
			assert.True(t, snap.GeneratedAt.Equal(got.GeneratedAt))
			require.Len(t, got.Series.Buckets, 2)
			assert.Equal(t, "30.00", got.Series.Buckets[1].Profit.String())
			assert.Equal(t, 1, got.Series.Skipped.MissingProduct)
			assert.Equal(t, snap.Categories, got.Categories)
			assert.Equal(t, "40.00", got.Summary.TotalProfit.String())

			_, err = repo.GetReportSnapshot(ctx, core.MonthKey{Year: 1999, Month: time.May})
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}
