// Package services orchestrates the catalog writes and the dashboard
// reports on top of the records repository.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizdash/internal/amqp"
	"bizdash/internal/core"
	"bizdash/internal/log"
	"bizdash/internal/records"
	"bizdash/internal/storage"
)

var (
	// ErrUnknownProduct is returned when a sale references a product that
	// does not exist.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrUnknownCustomer is returned when a sale references a customer that
	// does not exist.
	ErrUnknownCustomer = errors.New("unknown customer")
)

// IsReferenceError reports whether err is a failed referential check.
func IsReferenceError(err error) bool {
	return errors.Is(err, ErrUnknownProduct) || errors.Is(err, ErrUnknownCustomer)
}

// Publisher announces record changes to other processes.
type Publisher interface {
	PublishRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error
}

// Invalidator drops cached aggregates after a write.
type Invalidator interface {
	Invalidate()
}

// CatalogService validates and stores products, customers and sales.
type CatalogService struct {
	repo        *records.Repository
	publisher   Publisher
	invalidator Invalidator
	logger      *log.Logger
	structured  *log.StructuredLogger
	now         func() time.Time
}

// NewCatalogService wires a catalog. publisher and invalidator may be nil.
func NewCatalogService(repo *records.Repository, publisher Publisher, invalidator Invalidator, logger *log.Logger) *CatalogService {
	if logger == nil {
		logger = log.Discard()
	}
	return &CatalogService{
		repo:        repo,
		publisher:   publisher,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentCatalog),
		structured:  log.NewStructuredLogger(logger),
		now:         time.Now,
	}
}

func (s *CatalogService) ListProducts(ctx context.Context, term string) ([]core.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return core.FilterProducts(products, term), nil
}

func (s *CatalogService) ListCustomers(ctx context.Context, term string) ([]core.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	return core.FilterCustomers(customers, term), nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (core.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *CatalogService) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *CatalogService) GetSale(ctx context.Context, id string) (core.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *CatalogService) CreateProduct(ctx context.Context, p core.Product) (core.Product, error) {
	if err := p.Validate(); err != nil {
		return core.Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return core.Product{}, err
	}
	s.changed(ctx, core.CollectionProducts, created.ID, amqp.OpCreated)
	return created, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, p core.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return err
	}
	s.changed(ctx, core.CollectionProducts, p.ID, amqp.OpUpdated)
	return nil
}

// DeleteProduct removes a product. Sales that reference it stay and are
// reported as unresolved by the aggregates.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, core.CollectionProducts, id, amqp.OpDeleted)
	return nil
}

func (s *CatalogService) CreateCustomer(ctx context.Context, c core.Customer) (core.Customer, error) {
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	created, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return core.Customer{}, err
	}
	s.changed(ctx, core.CollectionCustomers, created.ID, amqp.OpCreated)
	return created, nil
}

func (s *CatalogService) UpdateCustomer(ctx context.Context, c core.Customer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateCustomer(ctx, c); err != nil {
		return err
	}
	s.changed(ctx, core.CollectionCustomers, c.ID, amqp.OpUpdated)
	return nil
}

func (s *CatalogService) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, core.CollectionCustomers, id, amqp.OpDeleted)
	return nil
}

// CreateSale stores a sale after checking both references. The product's
// current price is recorded on the sale. A zero date means now.
func (s *CatalogService) CreateSale(ctx context.Context, sale core.Sale) (core.Sale, error) {
	if sale.Date.IsZero() {
		sale.Date = s.now().UTC()
	}
	sale.UnitPrice = nil
	if err := sale.Validate(); err != nil {
		return core.Sale{}, err
	}
	product, err := s.checkReferences(ctx, sale)
	if err != nil {
		return core.Sale{}, err
	}
	if product.PriceValid {
		price := product.Price
		sale.UnitPrice = &price
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return core.Sale{}, err
	}
	s.changed(ctx, core.CollectionSales, created.ID, amqp.OpCreated)
	return created, nil
}

// UpdateSale rewrites a sale. The recorded price is kept unless the sale
// now points at a different product.
func (s *CatalogService) UpdateSale(ctx context.Context, sale core.Sale) error {
	existing, err := s.repo.GetSale(ctx, sale.ID)
	if err != nil {
		return err
	}
	if sale.Date.IsZero() {
		sale.Date = existing.Date
	}
	sale.UnitPrice = existing.UnitPrice
	if err := sale.Validate(); err != nil {
		return err
	}
	product, err := s.checkReferences(ctx, sale)
	if err != nil {
		return err
	}
	if sale.ProductID != existing.ProductID {
		sale.UnitPrice = nil
		if product.PriceValid {
			price := product.Price
			sale.UnitPrice = &price
		}
	}

	if err := s.repo.UpdateSale(ctx, sale); err != nil {
		return err
	}
	s.changed(ctx, core.CollectionSales, sale.ID, amqp.OpUpdated)
	return nil
}

func (s *CatalogService) DeleteSale(ctx context.Context, id string) error {
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, core.CollectionSales, id, amqp.OpDeleted)
	return nil
}

func (s *CatalogService) checkReferences(ctx context.Context, sale core.Sale) (core.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(sale.ProductID))
	if errors.Is(err, storage.ErrNotFound) {
		return core.Product{}, fmt.Errorf("%w: %s", ErrUnknownProduct, sale.ProductID)
	}
	if err != nil {
		return core.Product{}, err
	}
	_, err = s.repo.GetCustomer(ctx, strings.TrimSpace(sale.CustomerID))
	if errors.Is(err, storage.ErrNotFound) {
		return core.Product{}, fmt.Errorf("%w: %s", ErrUnknownCustomer, sale.CustomerID)
	}
	if err != nil {
		return core.Product{}, err
	}
	return product, nil
}

// changed runs after a successful write. Publication failures are logged
// and never fail the write.
func (s *CatalogService) changed(ctx context.Context, collection, id string, op amqp.Operation) {
	s.structured.LogRecordChanged(ctx, string(op), collection, id)

	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRecordChanged(ctx, amqp.NewRecordChangedMessage(collection, id, op)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish record change",
			log.FieldCollection, collection,
			log.FieldRecordID, id,
			log.FieldError, err.Error(),
			log.FieldErrorType, log.ErrorTypeNetwork)
	}
}
