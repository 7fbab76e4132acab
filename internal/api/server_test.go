package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"siteRelay/internal/lookup"
	"siteRelay/internal/model"
	"siteRelay/internal/storage/memory"
)

type fakeNode struct {
	connected bool
}

func (f *fakeNode) Connected() bool { return f.connected }

func newTestServer(t *testing.T, store *memory.Store, node NodeStatus) *Server {
	t.Helper()
	// short cadence so the not-found path exhausts quickly
	lookups := lookup.NewService(store, lookup.Config{MaxAttempts: 3, Interval: time.Millisecond}, nil)
	return NewServer(context.Background(), Config{
		Port:           0,
		AllowedOrigins: []string{"https://allowed.example"},
	}, lookups, store, node, nil)
}

func postWebsite(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/get-website", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetWebsiteFound(t *testing.T) {
	store := memory.NewStore()
	if err := store.Append(context.Background(), model.EventRecord{
		TxHash:     "0xABC",
		PayloadURL: "https://example.com/page",
		ObservedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	server := newTestServer(t, store, &fakeNode{connected: true})
	rec := postWebsite(t, server, `{"transactionHash":"0xABC"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		URL         string `json:"url"`
		ProcessTime int64  `json:"processTime"`
		Timestamp   string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if resp.URL != "https://example.com/page" {
		t.Fatalf("url mismatch: %s", resp.URL)
	}
	if resp.Timestamp == "" {
		t.Fatalf("timestamp missing")
	}
}

func TestGetWebsiteNotFound(t *testing.T) {
	server := newTestServer(t, memory.NewStore(), &fakeNode{connected: true})
	rec := postWebsite(t, server, `{"transactionHash":"0xDEF"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error       string `json:"error"`
		Attempts    int    `json:"attempts"`
		ProcessTime int64  `json:"processTime"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if resp.Attempts != 3 {
		t.Fatalf("attempts mismatch: %d", resp.Attempts)
	}
	if resp.Error == "" {
		t.Fatalf("error message missing")
	}
}

func TestGetWebsiteMissingHashExhaustsDeadline(t *testing.T) {
	// presence is not validated; an absent hash just never matches
	server := newTestServer(t, memory.NewStore(), &fakeNode{connected: true})
	rec := postWebsite(t, server, `{}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetWebsiteStoreErrorIsInternal(t *testing.T) {
	store := memory.NewStore()
	store.SetConnected(false)
	server := newTestServer(t, store, &fakeNode{connected: true})
	rec := postWebsite(t, server, `{"transactionHash":"0xABC"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if strings.Contains(resp.Error, "unavailable") {
		t.Fatalf("internal detail leaked to caller: %s", resp.Error)
	}
}

func TestGetWebsiteRejectsBadJSON(t *testing.T) {
	server := newTestServer(t, memory.NewStore(), &fakeNode{connected: true})
	rec := postWebsite(t, server, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetWebsiteMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, memory.NewStore(), &fakeNode{connected: true})
	req := httptest.NewRequest(http.MethodGet, "/api/get-website", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHealthReportsBothSignals(t *testing.T) {
	store := memory.NewStore()
	server := newTestServer(t, store, &fakeNode{connected: false})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status     string `json:"status"`
		Timestamp  string `json:"timestamp"`
		DBStatus   string `json:"dbStatus"`
		Web3Status string `json:"web3Status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status mismatch: %s", resp.Status)
	}
	if resp.DBStatus != "connected" {
		t.Fatalf("dbStatus mismatch: %s", resp.DBStatus)
	}
	if resp.Web3Status != "disconnected" {
		t.Fatalf("web3Status mismatch: %s", resp.Web3Status)
	}
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t, memory.NewStore(), &fakeNode{connected: true})

	req := httptest.NewRequest(http.MethodOptions, "/api/get-website", nil)
	req.Header.Set("Origin", "https://allowed.example")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Fatalf("allow-origin mismatch: %q", got)
	}
}

func TestCORSUnknownOriginNotAllowed(t *testing.T) {
	server := newTestServer(t, memory.NewStore(), &fakeNode{connected: true})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://other.example")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin for unknown caller: %q", got)
	}
}
