// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/lineagehub/internal/config"
	"github.com/tomtom215/lineagehub/internal/listeners"
	"github.com/tomtom215/lineagehub/internal/registry"
)

func newTestRouter(t *testing.T) (http.Handler, *registry.Registry, string) {
	t.Helper()

	root := t.TempDir()
	bus := listeners.NewBus(16)
	t.Cleanup(func() { bus.Close() })

	srv, err := listeners.NewServerListeners(bus)
	if err != nil {
		t.Fatalf("NewServerListeners() error: %v", err)
	}
	t.Cleanup(srv.Close)

	reg := registry.New(root, bus, srv, nil)
	t.Cleanup(reg.Close)

	cfg := &config.Config{}
	cfg.Security.RateLimitDisabled = true

	return NewRouter(cfg, reg, nil).Setup(), reg, root
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec, rec.Body.String()
}

func TestHelpListing(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec, body := get(t, h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{
		"Listings:",
		"/add/DATASET",
		"/addSecret/DATASET",
		"/remove/DATASET",
		`is the only "key" to read/write access the data`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("help listing missing %q", want)
		}
	}
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, body := get(t, h, "/healthz")
	if rec.Code != http.StatusOK || body != "OK" {
		t.Errorf("got %d %q, want 200 OK", rec.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, body := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics body missing runtime collectors")
	}
}

func TestAddEchoesDatasetName(t *testing.T) {
	h, _, root := newTestRouter(t)

	rec, body := get(t, h, "/add/recon")
	if rec.Code != http.StatusOK || body != "recon" {
		t.Fatalf("got %d %q, want 200 recon", rec.Code, body)
	}
	if info, err := os.Stat(filepath.Join(root, "recon")); err != nil || !info.IsDir() {
		t.Errorf("dataset directory was not created: %v", err)
	}
}

func TestManagementRoutesAcceptPost(t *testing.T) {
	h, _, root := newTestRouter(t)

	post := func(path string) (*httptest.ResponseRecorder, string) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec, rec.Body.String()
	}

	rec, body := post("/add/recon")
	if rec.Code != http.StatusOK || body != "recon" {
		t.Fatalf("POST add: got %d %q, want 200 recon", rec.Code, body)
	}
	if info, err := os.Stat(filepath.Join(root, "recon")); err != nil || !info.IsDir() {
		t.Errorf("dataset directory was not created: %v", err)
	}

	rec, body = post("/add/recon")
	if rec.Code != http.StatusOK || body != "ERROR" {
		t.Errorf("POST duplicate add: got %d %q, want 200 ERROR", rec.Code, body)
	}

	rec, body = post("/addSecret/mine")
	if rec.Code != http.StatusOK || !strings.HasSuffix(body, "-mine") {
		t.Errorf("POST addSecret: got %d %q", rec.Code, body)
	}

	rec, body = post("/remove/recon")
	if rec.Code != http.StatusOK || body != "OK" {
		t.Errorf("POST remove: got %d %q, want 200 OK", rec.Code, body)
	}
}

func TestAddDuplicateIsError(t *testing.T) {
	h, _, _ := newTestRouter(t)

	get(t, h, "/add/recon")
	rec, body := get(t, h, "/add/recon")
	if rec.Code != http.StatusOK || body != "ERROR" {
		t.Errorf("got %d %q, want 200 ERROR", rec.Code, body)
	}
}

func TestAddReservedNameIsError(t *testing.T) {
	h, _, _ := newTestRouter(t)

	for _, name := range []string{"add", "metrics", "healthz", "events"} {
		rec, body := get(t, h, "/add/"+name)
		if rec.Code != http.StatusOK || body != "ERROR" {
			t.Errorf("/add/%s: got %d %q, want 200 ERROR", name, rec.Code, body)
		}
	}
}

func TestAddSecretPrefixesName(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec, body := get(t, h, "/addSecret/mine")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.HasSuffix(body, "-mine") || len(body) != 36+1+len("mine") {
		t.Errorf("secret name = %q, want uuid prefix plus -mine", body)
	}
}

func TestRemove(t *testing.T) {
	h, _, root := newTestRouter(t)

	get(t, h, "/add/recon")
	if err := os.WriteFile(filepath.Join(root, "recon", "a.mstdn"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, body := get(t, h, "/remove/recon")
	if rec.Code != http.StatusOK || body != "OK" {
		t.Fatalf("got %d %q, want 200 OK", rec.Code, body)
	}
	if _, err := os.Stat(filepath.Join(root, "recon")); !os.IsNotExist(err) {
		t.Error("dataset directory still exists after remove")
	}

	rec, body = get(t, h, "/remove/recon")
	if rec.Code != http.StatusOK || body != "ERROR" {
		t.Errorf("second remove: got %d %q, want 200 ERROR", rec.Code, body)
	}
}

func TestUnknownDatasetIs404(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, _ := get(t, h, "/ghost/list")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDatasetLifecycleScenario(t *testing.T) {
	h, _, _ := newTestRouter(t)

	// create
	if rec, body := get(t, h, "/add/team9"); rec.Code != http.StatusOK || body != "team9" {
		t.Fatalf("add: %d %q", rec.Code, body)
	}

	// upload
	const fname = "2024-05-01__10-00-00__alice.mstdn"
	req := httptest.NewRequest(http.MethodPost,
		"/team9/put?name="+fname+"&spots=5&links=4",
		strings.NewReader("snapshot-payload"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: status = %d, body %q", rec.Code, rec.Body.String())
	}

	// list
	if _, body := get(t, h, "/team9/list"); body != fname+"\n" {
		t.Errorf("list = %q", body)
	}

	// download
	recDown, body := get(t, h, "/team9/files/"+fname)
	if recDown.Code != http.StatusOK || body != "snapshot-payload" {
		t.Errorf("download: %d %q", recDown.Code, body)
	}

	// browse root of the dataset
	if _, body := get(t, h, "/team9"); !strings.Contains(body, fname) {
		t.Errorf("browse listing missing %q: %q", fname, body)
	}

	// remove, then every dataset route is gone
	if rec, body := get(t, h, "/remove/team9"); rec.Code != http.StatusOK || body != "OK" {
		t.Fatalf("remove: %d %q", rec.Code, body)
	}
	if rec, _ := get(t, h, "/team9/list"); rec.Code != http.StatusNotFound {
		t.Errorf("list after remove: status = %d, want 404", rec.Code)
	}
}

func TestMalformedCountsRejected(t *testing.T) {
	h, _, _ := newTestRouter(t)
	get(t, h, "/add/recon")

	req := httptest.NewRequest(http.MethodPost, "/recon/put?name=a.mstdn&spots=banana", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, _ := get(t, h, "/healthz")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, _ := get(t, h, "/healthz")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options missing")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("X-Frame-Options missing")
	}
}

func TestRateLimitEnforced(t *testing.T) {
	root := t.TempDir()
	bus := listeners.NewBus(16)
	defer bus.Close()
	srv, err := listeners.NewServerListeners(bus)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	reg := registry.New(root, bus, srv, nil)
	defer reg.Close()

	cfg := &config.Config{}
	cfg.Security.RateLimitReqs = 3
	cfg.Security.RateLimitWindow = time.Minute

	h := NewRouter(cfg, reg, nil).Setup()

	var limited bool
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ghost/list", nil)
		req.RemoteAddr = "10.1.2.3:5000"
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("rate limiter never rejected")
	}
}

func TestHelpListingCompressed(t *testing.T) {
	h, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if enc := rec.Header().Get("Content-Encoding"); enc != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", enc)
	}
	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "Listings:") {
		t.Errorf("decompressed body missing help text: %q", body)
	}
}

func TestMetricsCompressedOnce(t *testing.T) {
	h, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	// A doubly compressed body would still be a gzip stream here.
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("single gunzip did not yield the scrape text")
	}
}

func TestHelpListingReadable(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec, _ := get(t, h, "/")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if _, err := io.ReadAll(rec.Body); err != nil {
		t.Fatal(err)
	}
}
