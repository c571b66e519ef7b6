// Package records is the typed boundary between the document store and the
// core domain. Every stored record is decoded and normalized here.
package records

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bizdash/internal/core"
	"bizdash/internal/log"
	"bizdash/internal/storage"
)

// Repository reads and writes domain records through a RecordStore.
type Repository struct {
	store  storage.RecordStore
	logger *log.Logger
}

func NewRepository(store storage.RecordStore, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.Discard()
	}
	return &Repository{store: store, logger: logger.WithComponent(log.ComponentRecords)}
}

// Store exposes the underlying store for health checks.
func (r *Repository) Store() storage.RecordStore {
	return r.store
}

// Snapshot is a consistent read of the three collections.
type Snapshot struct {
	Products  []core.Product
	Customers []core.Customer
	Sales     []core.Sale
	// Rejected counts documents that could not be decoded and were left out.
	Rejected int
}

// LoadSnapshot fetches products, customers and sales concurrently and
// returns once all three have completed. Any fetch failure fails the whole
// snapshot.
func (r *Repository) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	var (
		snap     Snapshot
		rejected [3]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Products, rejected[0], err = r.listProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Customers, rejected[1], err = r.listCustomers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Sales, rejected[2], err = r.listSales(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	snap.Rejected = rejected[0] + rejected[1] + rejected[2]
	return snap, nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]core.Product, error) {
	out, _, err := r.listProducts(ctx)
	return out, err
}

func (r *Repository) ListCustomers(ctx context.Context) ([]core.Customer, error) {
	out, _, err := r.listCustomers(ctx)
	return out, err
}

func (r *Repository) ListSales(ctx context.Context) ([]core.Sale, error) {
	out, _, err := r.listSales(ctx)
	return out, err
}

func (r *Repository) listProducts(ctx context.Context) ([]core.Product, int, error) {
	docs, err := r.store.ListAll(ctx, core.CollectionProducts)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	out, rejected := decodeAll(ctx, r.logger, docs, DecodeProduct)
	return out, rejected, nil
}

func (r *Repository) listCustomers(ctx context.Context) ([]core.Customer, int, error) {
	docs, err := r.store.ListAll(ctx, core.CollectionCustomers)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	out, rejected := decodeAll(ctx, r.logger, docs, DecodeCustomer)
	return out, rejected, nil
}

func (r *Repository) listSales(ctx context.Context) ([]core.Sale, int, error) {
	docs, err := r.store.ListAll(ctx, core.CollectionSales)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	out, rejected := decodeAll(ctx, r.logger, docs, DecodeSale)
	return out, rejected, nil
}

// decodeAll keeps the documents that decode and logs the rest.
func decodeAll[T any](ctx context.Context, logger *log.Logger, docs []storage.Document, decode func(storage.Document) (T, error)) ([]T, int) {
	out := make([]T, 0, len(docs))
	rejected := 0
	for _, d := range docs {
		v, err := decode(d)
		if err != nil {
			rejected++
			logger.WarnContext(ctx, "Skipping undecodable record",
				log.FieldRecordID, d.ID,
				log.FieldError, err.Error(),
				log.FieldErrorType, log.ErrorTypeValidation)
			continue
		}
		out = append(out, v)
	}
	return out, rejected
}

func (r *Repository) GetProduct(ctx context.Context, id string) (core.Product, error) {
	doc, err := r.store.GetByID(ctx, core.CollectionProducts, id)
	if err != nil {
		return core.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return DecodeProduct(doc)
}

func (r *Repository) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	doc, err := r.store.GetByID(ctx, core.CollectionCustomers, id)
	if err != nil {
		return core.Customer{}, fmt.Errorf("get customer %s: %w", id, err)
	}
	return DecodeCustomer(doc)
}

func (r *Repository) GetSale(ctx context.Context, id string) (core.Sale, error) {
	doc, err := r.store.GetByID(ctx, core.CollectionSales, id)
	if err != nil {
		return core.Sale{}, fmt.Errorf("get sale %s: %w", id, err)
	}
	return DecodeSale(doc)
}

// SalesByCustomer returns only the sales that reference customerID.
func (r *Repository) SalesByCustomer(ctx context.Context, customerID string) ([]core.Sale, error) {
	docs, err := r.store.QueryByField(ctx, core.CollectionSales, "customerId", customerID)
	if err != nil {
		return nil, fmt.Errorf("query sales for customer %s: %w", customerID, err)
	}
	out, _ := decodeAll(ctx, r.logger, docs, DecodeSale)
	return out, nil
}

// ProductsByIDs fetches the distinct ids in a single batch. Ids that do not
// exist are absent from the result.
func (r *Repository) ProductsByIDs(ctx context.Context, ids []string) ([]core.Product, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	docs, err := r.store.GetMany(ctx, core.CollectionProducts, unique)
	if err != nil {
		return nil, fmt.Errorf("get products by ids: %w", err)
	}
	out, _ := decodeAll(ctx, r.logger, docs, DecodeProduct)
	return out, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p core.Product) (core.Product, error) {
	id, err := r.store.Add(ctx, core.CollectionProducts, EncodeProduct(p))
	if err != nil {
		return core.Product{}, fmt.Errorf("create product: %w", err)
	}
	p.ID = id
	return p, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, p core.Product) error {
	if err := r.store.Update(ctx, core.CollectionProducts, p.ID, EncodeProduct(p)); err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	return nil
}

func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, core.CollectionProducts, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}

func (r *Repository) CreateCustomer(ctx context.Context, c core.Customer) (core.Customer, error) {
	id, err := r.store.Add(ctx, core.CollectionCustomers, EncodeCustomer(c))
	if err != nil {
		return core.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	c.ID = id
	return c, nil
}

func (r *Repository) UpdateCustomer(ctx context.Context, c core.Customer) error {
	if err := r.store.Update(ctx, core.CollectionCustomers, c.ID, EncodeCustomer(c)); err != nil {
		return fmt.Errorf("update customer %s: %w", c.ID, err)
	}
	return nil
}

func (r *Repository) DeleteCustomer(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, core.CollectionCustomers, id); err != nil {
		return fmt.Errorf("delete customer %s: %w", id, err)
	}
	return nil
}

func (r *Repository) CreateSale(ctx context.Context, s core.Sale) (core.Sale, error) {
	id, err := r.store.Add(ctx, core.CollectionSales, EncodeSale(s))
	if err != nil {
		return core.Sale{}, fmt.Errorf("create sale: %w", err)
	}
	s.ID = id
	return s, nil
}

// UpdateSale replaces the stored sale whole, so a cleared unit price does
// not survive a merge.
func (r *Repository) UpdateSale(ctx context.Context, s core.Sale) error {
	if _, err := r.store.GetByID(ctx, core.CollectionSales, s.ID); err != nil {
		return fmt.Errorf("update sale %s: %w", s.ID, err)
	}
	if err := r.store.Put(ctx, core.CollectionSales, s.ID, EncodeSale(s)); err != nil {
		return fmt.Errorf("update sale %s: %w", s.ID, err)
	}
	return nil
}

func (r *Repository) DeleteSale(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, core.CollectionSales, id); err != nil {
		return fmt.Errorf("delete sale %s: %w", id, err)
	}
	return nil
}
