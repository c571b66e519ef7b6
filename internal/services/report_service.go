package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bizdash/internal/cache"
	"bizdash/internal/core"
	"bizdash/internal/log"
	"bizdash/internal/records"
)

const dashboardKey = "dashboard"

// Dashboard is the aggregate behind the main page.
type Dashboard struct {
	Series      core.MonthlySeries
	Categories  []core.CategoryCount
	Summary     core.SeriesSummary
	Rejected    int
	GeneratedAt time.Time
}

// ChartData is the dashboard flattened into the parallel arrays the
// browser charting library consumes.
type ChartData struct {
	Labels         []string        `json:"labels"`
	Months         []string        `json:"months"`
	UnitsSold      []int           `json:"unitsSold"`
	Profit         []core.Money    `json:"profit"`
	CategoryLabels []string        `json:"categoryLabels"`
	CategoryCounts []int           `json:"categoryCounts"`
	TotalUnits     int             `json:"totalUnits"`
	TotalProfit    core.Money      `json:"totalProfit"`
	BestMonth      string          `json:"bestMonth,omitempty"`
	Skipped        core.SkipReport `json:"skipped"`
	Rejected       int             `json:"rejectedRecords"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}

// Chart renders the dashboard with month labels in locale.
func (d Dashboard) Chart(locale string) ChartData {
	out := ChartData{
		Labels:         make([]string, 0, len(d.Series.Buckets)),
		Months:         make([]string, 0, len(d.Series.Buckets)),
		UnitsSold:      make([]int, 0, len(d.Series.Buckets)),
		Profit:         make([]core.Money, 0, len(d.Series.Buckets)),
		CategoryLabels: make([]string, 0, len(d.Categories)),
		CategoryCounts: make([]int, 0, len(d.Categories)),
		TotalUnits:     d.Summary.TotalUnits,
		TotalProfit:    d.Summary.TotalProfit,
		Skipped:        d.Series.Skipped,
		Rejected:       d.Rejected,
		GeneratedAt:    d.GeneratedAt,
	}
	spansYears := len(d.Series.Buckets) > 0 &&
		d.Series.Buckets[0].Key.Year != d.Series.Buckets[len(d.Series.Buckets)-1].Key.Year
	for _, b := range d.Series.Buckets {
		label := b.Key.Label(locale)
		if spansYears {
			label = b.Key.LabelWithYear(locale)
		}
		out.Labels = append(out.Labels, label)
		out.Months = append(out.Months, b.Key.String())
		out.UnitsSold = append(out.UnitsSold, b.UnitsSold)
		out.Profit = append(out.Profit, b.Profit)
	}
	for _, c := range d.Categories {
		out.CategoryLabels = append(out.CategoryLabels, c.Category)
		out.CategoryCounts = append(out.CategoryCounts, c.Count)
	}
	if !d.Summary.BestMonth.IsZero() {
		out.BestMonth = d.Summary.BestMonth.LabelWithYear(locale)
	}
	return out
}

// ReportConfig tunes the ReportService.
type ReportConfig struct {
	Options       core.AggregateOptions
	CacheTTL      time.Duration
	PurchaseCache int
}

// ReportService computes the dashboard and per-customer reports, caching
// both until the next write.
type ReportService struct {
	repo      *records.Repository
	opts      core.AggregateOptions
	dashboard *cache.LRUCache[Dashboard]
	purchases *cache.LRUCache[core.PurchaseSummary]
	group     singleflight.Group
	logger    *log.Logger
	now       func() time.Time

	// gen counts invalidations. A report computed under an older
	// generation is returned but never cached.
	mu  sync.Mutex
	gen uint64
}

func NewReportService(repo *records.Repository, cfg ReportConfig, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.PurchaseCache <= 0 {
		cfg.PurchaseCache = 256
	}
	return &ReportService{
		repo:      repo,
		opts:      cfg.Options,
		dashboard: cache.NewLRUCache[Dashboard](1, cfg.CacheTTL),
		purchases: cache.NewLRUCache[core.PurchaseSummary](cfg.PurchaseCache, cfg.CacheTTL),
		logger:    logger.WithComponent(log.ComponentReport),
		now:       time.Now,
	}
}

// RegisterCaches hands the report caches to a cleanup manager.
func (s *ReportService) RegisterCaches(m *cache.Manager) {
	m.Register(s.dashboard)
	m.Register(s.purchases)
}

// Dashboard returns the cached aggregate or computes it from a fresh
// snapshot. Concurrent misses share one computation.
func (s *ReportService) Dashboard(ctx context.Context) (Dashboard, error) {
	if d, ok := s.dashboard.Get(dashboardKey); ok {
		return d, nil
	}
	v, err, _ := s.group.Do(dashboardKey, func() (any, error) {
		gen := s.generation()
		d, err := s.BuildDashboard(context.WithoutCancel(ctx))
		if err != nil {
			return Dashboard{}, err
		}
		s.storeIfCurrent(gen, func() { s.dashboard.Set(dashboardKey, d) })
		return d, nil
	})
	if err != nil {
		return Dashboard{}, err
	}
	return v.(Dashboard), nil
}

// BuildDashboard computes the aggregate without touching the cache.
func (s *ReportService) BuildDashboard(ctx context.Context) (Dashboard, error) {
	snap, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	series, err := core.BuildMonthlySeries(snap.Sales, snap.Products, s.opts)
	if err != nil {
		s.logIntegrity(ctx, err)
		return Dashboard{}, err
	}
	if series.Skipped.Total() > 0 {
		s.logger.WarnContext(ctx, "Dashboard built with unresolved sales",
			log.NewFields().WithSkipped(series.Skipped.MissingProduct, series.Skipped.InvalidPrice).ToSlice()...)
	}
	return Dashboard{
		Series:      series,
		Categories:  core.BuildCategoryBreakdown(snap.Products),
		Summary:     core.Summarize(series),
		Rejected:    snap.Rejected,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// CustomerPurchases lists one customer's purchases. Only that customer's
// sales are read, and their products are fetched in one batch.
func (s *ReportService) CustomerPurchases(ctx context.Context, customerID string) (core.PurchaseSummary, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return core.PurchaseSummary{}, core.ErrMissingCustomerID
	}
	if p, ok := s.purchases.Get(customerID); ok {
		return p, nil
	}

	gen := s.generation()
	sales, err := s.repo.SalesByCustomer(ctx, customerID)
	if err != nil {
		return core.PurchaseSummary{}, err
	}
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ProductID)
	}
	products, err := s.repo.ProductsByIDs(ctx, ids)
	if err != nil {
		return core.PurchaseSummary{}, err
	}

	summary, err := core.ResolveCustomerPurchases(customerID, sales, products, s.opts)
	if err != nil {
		s.logIntegrity(ctx, err)
		return core.PurchaseSummary{}, err
	}
	s.storeIfCurrent(gen, func() { s.purchases.Set(customerID, summary) })
	return summary, nil
}

// SalesLedger joins every sale with its product and customer names and
// keeps the lines matching term.
func (s *ReportService) SalesLedger(ctx context.Context, term string) ([]core.SaleLine, error) {
	snap, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	lines := core.BuildSalesLedger(snap.Sales, snap.Products, snap.Customers, s.opts)
	return core.FilterSalesLedger(lines, term), nil
}

// Invalidate drops every cached report. Computations already running
// finish for their callers but do not repopulate the caches.
func (s *ReportService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.group.Forget(dashboardKey)
	s.dashboard.Purge()
	s.purchases.Purge()
}

func (s *ReportService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *ReportService) storeIfCurrent(gen uint64, set func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		set()
	}
}

// CacheStats reports the counters of both caches by name.
func (s *ReportService) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"dashboard": s.dashboard.Stats(),
		"purchases": s.purchases.Stats(),
	}
}

func (s *ReportService) logIntegrity(ctx context.Context, err error) {
	var integrity *core.IntegrityError
	if !errors.As(err, &integrity) {
		return
	}
	fields := log.NewFields().
		WithSkipped(integrity.Skipped.MissingProduct, integrity.Skipped.InvalidPrice).
		WithErrorType(log.ErrorTypeIntegrity).
		WithOperation(log.OpAggregate)
	s.logger.ErrorContext(ctx, "Aggregation refused under strict integrity policy", fields.ToSlice()...)
}
