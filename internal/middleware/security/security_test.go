package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		build  func() *http.Request
		reason string
	}{
		{
			name:  "ordinary dashboard request",
			build: func() *http.Request { return httptest.NewRequest(http.MethodGet, "/api/dashboard", nil) },
		},
		{
			name:   "path traversal",
			build:  func() *http.Request { return httptest.NewRequest(http.MethodGet, "/static/../.env", nil) },
			reason: "path:../",
		},
		{
			name: "sql injection in query",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/products?q=1%20union%20select", nil)
			},
			reason: "query:union select",
		},
		{
			name: "scanner user agent",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("User-Agent", "sqlmap/1.7")
				return r
			},
			reason: "agent:sqlmap",
		},
		{
			name:   "trace method",
			build:  func() *http.Request { return httptest.NewRequest("TRACE", "/", nil) },
			reason: "method:TRACE",
		},
		{
			name: "forged forwarding chain",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("X-Forwarded-For", "1.1.1.1,2.2.2.2,3.3.3.3,4.4.4.4,5.5.5.5,6.6.6.6,7.7.7.7")
				return r
			},
			reason: "forwarded_hops",
		},
		{
			name: "overlong url",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/?q="+strings.Repeat("a", 3000), nil)
			},
			reason: "url_length",
		},
	}

	d := NewDetector(nil)
	flagged := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.DetectSuspiciousRequest(tt.build())
			assert.Equal(t, tt.reason, got)
		})
		if tt.reason != "" {
			flagged++
		}
	}
	assert.Equal(t, int64(flagged), d.GetMetrics().SuspiciousRequests)
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector(nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:5000"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", d.ExtractClientIP(r), "trusted proxy forwards the client address")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:5000"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "198.51.100.7", d.ExtractClientIP(r), "untrusted peers cannot spoof")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:80"
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "203.0.113.10", d.ExtractClientIP(r))
	assert.Equal(t, int64(1), d.GetMetrics().InvalidIPAttempts)
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector(nil)
	require.Error(t, d.AddTrustedProxy("nope"))
	require.NoError(t, d.AddTrustedProxy("198.51.100.0/24"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:5000"
	r.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", d.ExtractClientIP(r))
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, ChartJSOrigin)
	assert.Contains(t, csp, HTMXOrigin)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "no HSTS over plain HTTP")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestStaticAssetMiddleware(t *testing.T) {
	h := StaticAssetMiddleware(3600)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}
