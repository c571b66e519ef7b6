package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"bizdash/internal/core"
	"bizdash/internal/log"
	"bizdash/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.started).Round(time.Second).String(),
	})
}

// handleReady checks the record store and, when configured, the broker.
// Only the store gates readiness; writes still succeed without the broker.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	switch {
	case s.store == nil:
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	default:
		if err := s.store.Ping(ctx); err != nil {
			checks["store"] = "failed: " + err.Error()
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	if s.broker == nil {
		checks["broker"] = "not_configured"
	} else if err := s.broker.Ping(ctx); err != nil {
		checks["broker"] = "degraded: " + err.Error()
	} else {
		checks["broker"] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "HTTP responses with a 5xx status", "counter", traceMetrics.ServerErrors)
	metric("http_response_time_microseconds", "Moving average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("record_writes_total", "Successful product, customer and sale writes", "counter", atomic.LoadInt64(&s.appMetrics.writes))

	stats := s.reports.CacheStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, block := range []struct {
		name, help, kind string
		value            func(string) any
	}{
		{"cache_hits_total", "Report cache hits", "counter", func(n string) any { return stats[n].Hits }},
		{"cache_misses_total", "Report cache misses", "counter", func(n string) any { return stats[n].Misses }},
		{"cache_entries", "Current report cache entries", "gauge", func(n string) any { return stats[n].Size }},
	} {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", block.name, block.help, block.name, block.kind)
		for _, n := range names {
			fmt.Fprintf(w, "%s{cache=%q} %v\n", block.name, n, block.value(n))
		}
		fmt.Fprintln(w)
	}

	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Requests flagged by the security detector", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.appMetrics.started).Seconds()))
}

type monthRow struct {
	Key       string
	Label     string
	UnitsSold int
	Profit    core.Money
}

type dashboardView struct {
	Chart services.ChartData
	Rows  []monthRow
	// Categories keeps the breakdown sorted by name.
	Categories []core.CategoryCount
	Error      string
}

func (s *Server) dashboardView(ctx context.Context) (dashboardView, error) {
	d, err := s.reports.Dashboard(ctx)
	if err != nil {
		return dashboardView{}, err
	}
	chart := d.Chart(s.locale)
	view := dashboardView{Chart: chart, Categories: d.Categories}
	for i := range chart.Labels {
		view.Rows = append(view.Rows, monthRow{
			Key:       chart.Months[i],
			Label:     chart.Labels[i],
			UnitsSold: chart.UnitsSold[i],
			Profit:    chart.Profit[i],
		})
	}
	return view, nil
}

// handleIndex renders the dashboard page. A failed aggregation still
// renders the page, with the error in place of the charts.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view, err := s.dashboardView(r.Context())
	if err != nil {
		_, view.Error = s.logError(r, err, log.OpAggregate, "")
	}
	s.render(w, r, "index.html", struct {
		pageData
		Dashboard dashboardView
	}{s.page("Dashboard", "dashboard"), view})
}

// handleDashboardPartial renders only the dashboard panel for htmx refreshes.
func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	view, err := s.dashboardView(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpAggregate, "")
		return
	}
	s.render(w, r, "dashboard_panel", view)
}

// handleDashboardAPI serves the parallel arrays the charts consume. The
// locale query parameter overrides the configured month label language.
func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	d, err := s.reports.Dashboard(r.Context())
	if err != nil {
		status, msg := s.logError(r, err, log.OpAggregate, "")
		writeJSON(w, status, errorBody{Error: msg})
		return
	}
	locale := s.locale
	if l := r.URL.Query().Get("locale"); core.SupportedLocale(l) {
		locale = l
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, d.Chart(locale))
}
