package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"bizdash/internal/core"
	"bizdash/internal/log"
	"bizdash/internal/middleware/ratelimit"
	"bizdash/internal/middleware/security"
	"bizdash/internal/middleware/trace"
	"bizdash/internal/services"
	appweb "bizdash/web"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the server settings.
type Config struct {
	Addr string
	// Locale selects the month label language.
	Locale             string
	RateLimitPerMinute int
}

// Dependencies are the services the handlers call. Broker may be nil.
type Dependencies struct {
	Catalog *services.CatalogService
	Reports *services.ReportService
	Store   Pinger
	Broker  Pinger
}

type appMetrics struct {
	started time.Time
	writes  int64
}

// Server is the dashboard web server.
type Server struct {
	http.Server
	templates *template.Template
	catalog   *services.CatalogService
	reports   *services.ReportService
	store     Pinger
	broker    Pinger
	locale    string

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	logger   *log.Logger

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

var templateFuncs = template.FuncMap{
	"money":     func(m core.Money) string { return m.String() },
	"dateInput": formatDateInput,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02")
	},
	"lower": strings.ToLower,
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(cfg Config, deps Dependencies, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if deps.Catalog == nil || deps.Reports == nil {
		return nil, fmt.Errorf("catalog and reports services are required")
	}
	if !core.SupportedLocale(cfg.Locale) {
		cfg.Locale = core.LocaleEnglish
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	limitCfg := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = cfg.RateLimitPerMinute
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		templates:  t,
		catalog:    deps.Catalog,
		reports:    deps.Reports,
		store:      deps.Store,
		broker:     deps.Broker,
		locale:     cfg.Locale,
		limiter:    ratelimit.NewLimiter(limitCfg),
		detector:   security.NewDetector(logger),
		logger:     logger.WithComponent(log.ComponentHTTP),
		appMetrics: appMetrics{started: time.Now()},
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	s.Handler = handler

	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboardAPI)
	mux.HandleFunc("GET /ui/dashboard", s.handleDashboardPartial)

	mux.HandleFunc("GET /products", s.handleListProducts)
	mux.HandleFunc("POST /products", s.handleCreateProduct)
	mux.HandleFunc("GET /products/{id}", s.handleGetProduct)
	mux.HandleFunc("GET /products/{id}/edit", s.handleEditProduct)
	mux.HandleFunc("POST /products/{id}", s.handleUpdateProduct)
	mux.HandleFunc("PUT /products/{id}", s.handleUpdateProduct)
	mux.HandleFunc("DELETE /products/{id}", s.handleDeleteProduct)

	mux.HandleFunc("GET /customers", s.handleListCustomers)
	mux.HandleFunc("POST /customers", s.handleCreateCustomer)
	mux.HandleFunc("GET /customers/{id}", s.handleGetCustomer)
	mux.HandleFunc("GET /customers/{id}/edit", s.handleEditCustomer)
	mux.HandleFunc("POST /customers/{id}", s.handleUpdateCustomer)
	mux.HandleFunc("PUT /customers/{id}", s.handleUpdateCustomer)
	mux.HandleFunc("DELETE /customers/{id}", s.handleDeleteCustomer)

	mux.HandleFunc("GET /sales", s.handleListSales)
	mux.HandleFunc("POST /sales", s.handleCreateSale)
	mux.HandleFunc("GET /sales/{id}", s.handleGetSale)
	mux.HandleFunc("GET /sales/{id}/edit", s.handleEditSale)
	mux.HandleFunc("POST /sales/{id}", s.handleUpdateSale)
	mux.HandleFunc("PUT /sales/{id}", s.handleUpdateSale)
	mux.HandleFunc("DELETE /sales/{id}", s.handleDeleteSale)

	mux.HandleFunc("GET /purchases", s.handlePurchases)

	mux.HandleFunc("GET /export/monthly.csv", s.handleExportMonthly)
	mux.HandleFunc("GET /export/categories.csv", s.handleExportCategories)
	mux.HandleFunc("GET /export/purchases.csv", s.handleExportPurchases)
}

// Shutdown stops the rate limiter and drains the HTTP server. Safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	if wantsJSON(r) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
		return
	}
	ErrorResponse(http.StatusTooManyRequests, "Too many requests, please wait a minute").Write(w)
}

// pageData carries the fields every full page needs.
type pageData struct {
	Title  string
	Active string
	Locale string
}

func (s *Server) page(title, active string) pageData {
	return pageData{Title: title, Active: active, Locale: s.locale}
}

// render executes a template into a buffer so a failure never leaves a
// half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err.Error(),
			log.FieldOperation, log.OpRender,
			"template", name)
		InternalServerError("Error rendering page").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
