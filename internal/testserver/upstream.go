// Package testserver provides a mock upstream that serves PII-laden
// fixtures for integration tests.
package testserver

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Upstream emulates an origin service behind the proxy. Every textual
// endpoint deliberately embeds PII so tests can verify it never survives
// the filter.
type Upstream struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []string
}

// Start boots the fixture upstream.
func Start() *Upstream {
	u := &Upstream{}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", u.health)
	mux.HandleFunc("/api/user", u.user)
	mux.HandleFunc("/api/orders", u.orders)
	mux.HandleFunc("/api/user/gzip", u.userGzip)
	mux.HandleFunc("/image", u.image)
	mux.HandleFunc("/v2/api/user", u.userV2)
	mux.HandleFunc("/canary/api/user", u.userCanary)

	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests = append(u.requests, r.URL.Path)
		u.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))

	return u
}

// URL returns the upstream base URL.
func (u *Upstream) URL() string {
	return u.srv.URL
}

// Requests returns a snapshot of the request paths seen so far.
func (u *Upstream) Requests() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.requests))
	copy(out, u.requests)
	return out
}

// Stop shuts the upstream down.
func (u *Upstream) Stop() {
	if u == nil || u.srv == nil {
		return
	}
	u.srv.Close()
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data) //nolint:errcheck // fixture server
}

func (u *Upstream) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		// Bypassed paths deliver PII verbatim; tests rely on this to
		// prove the bypass list works.
		"oncall_ssn": "123-45-6789",
	})
}

func (u *Upstream) user(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    "user123",
		"email": "jane.doe@example.com",
		"ssn":   "123-45-6789",
		"card":  "4111-1111-1111-1111",
		"phone": "555-123-4567",
	})
}

func (u *Upstream) orders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": []map[string]any{
			{"id": 1, "card": "4111111111111111", "total": 99.95},
			{"id": 2, "card": "5500-0000-0000-0004", "total": 12.50},
		},
		"contact": "orders@example.com",
	})
}

func (u *Upstream) userGzip(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	fmt.Fprint(gw, `{"email":"jane.doe@example.com","ssn":"123-45-6789"}`)
	gw.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck // fixture server
}

func (u *Upstream) image(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	// Binary payload containing an SSN-shaped byte run.
	w.Write([]byte{0x89, 'P', 'N', 'G', ' ', '1', '2', '3', '-', '4', '5', '-', '6', '7', '8', '9'}) //nolint:errcheck
}

func (u *Upstream) userV2(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "user123",
		"email":   "jane.doe@example.com",
		"version": "v2",
	})
}

func (u *Upstream) userCanary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "user123",
		"ssn":     "123-45-6789",
		"version": "canary",
	})
}
