// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package transfer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tomtom215/lineagehub/internal/lineage"
)

func TestFixupURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:7070", "http://localhost:7070"},
		{"http://localhost:7070", "http://localhost:7070"},
		{"https://hub.example.org", "https://hub.example.org"},
		{"10.0.0.5:7070", "http://10.0.0.5:7070"},
	}
	for _, tt := range tests {
		if got := FixupURL(tt.in); got != tt.want {
			t.Errorf("FixupURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListAvailableFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recon/list" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, "2024-05-01__10-00-00__alice.mstdn\n2024-05-01__11-00-00__bob.mstdn\n")
	}))
	defer srv.Close()

	files, err := NewClient(srv.URL).ListAvailableFiles(context.Background(), "recon")
	if err != nil {
		t.Fatalf("ListAvailableFiles() error: %v", err)
	}
	want := []string{
		"2024-05-01__10-00-00__alice.mstdn",
		"2024-05-01__11-00-00__bob.mstdn",
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}
}

func TestGetFileWritesLocalCopy(t *testing.T) {
	const name = "2024-05-01__10-00-00__alice.mstdn"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recon/files/"+name {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("snapshot-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := NewClient(srv.URL).GetFile(context.Background(), "recon", name, dir); err != nil {
		t.Fatalf("GetFile() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "snapshot-bytes" {
		t.Errorf("downloaded content = %q", data)
	}
}

func TestGetFileMissingRemote(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := NewClient(srv.URL).GetFile(context.Background(), "recon", "nope.mstdn", t.TempDir())
	if !errors.Is(err, ErrRemote) {
		t.Errorf("error = %v, want ErrRemote", err)
	}
}

func TestPutFileSendsBodyAndQuery(t *testing.T) {
	const name = "2024-05-01__10-00-00__alice.mstdn"

	var gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/recon/put" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := NewClient(srv.URL).PutFile(context.Background(), "recon", name, 42, 41, dir)
	if err != nil {
		t.Fatalf("PutFile() error: %v", err)
	}

	want := "name=" + name + "&spots=42&links=41"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
	if gotBody != "payload" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestPutSnapshotDerivesCounts(t *testing.T) {
	const name = "2024-05-01__10-00-00__alice.mstdn"

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	body := lineage.EncodeCountHeader(9, 8, []byte("graph"))
	if err := lineage.WriteSnapshot(filepath.Join(dir, name), body, nil); err != nil {
		t.Fatal(err)
	}

	err := NewClient(srv.URL).PutSnapshot(context.Background(), "recon", name, dir, nil)
	if err != nil {
		t.Fatalf("PutSnapshot() error: %v", err)
	}
	want := "name=" + name + "&spots=9&links=8"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
}

func TestAddDatasetEchoesName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/add/recon" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, "recon")
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).AddDataset(context.Background(), "recon")
	if err != nil {
		t.Fatalf("AddDataset() error: %v", err)
	}
	if got != "recon" {
		t.Errorf("reply = %q, want recon", got)
	}
}

func TestAddDatasetError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ERROR")
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).AddDataset(context.Background(), "recon"); !errors.Is(err, ErrRemote) {
		t.Errorf("error = %v, want ErrRemote", err)
	}
}

func TestAddSecretDatasetReturnsFullName(t *testing.T) {
	const secret = "8f14e45f-ceea-467f-a8da-92c5f9a3b9e1-recon"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/addSecret/recon" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, secret)
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).AddSecretDataset(context.Background(), "recon")
	if err != nil {
		t.Fatalf("AddSecretDataset() error: %v", err)
	}
	if got != secret {
		t.Errorf("reply = %q, want %q", got, secret)
	}
}

func TestRemoveDataset(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "OK")
		}))
		defer srv.Close()

		if err := NewClient(srv.URL).RemoveDataset(context.Background(), "recon"); err != nil {
			t.Errorf("RemoveDataset() error: %v", err)
		}
	})

	t.Run("error reply", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "ERROR")
		}))
		defer srv.Close()

		if err := NewClient(srv.URL).RemoveDataset(context.Background(), "ghost"); !errors.Is(err, ErrRemote) {
			t.Errorf("error = %v, want ErrRemote", err)
		}
	})
}

func TestServerFailureSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).ListAvailableFiles(context.Background(), "recon"); err == nil {
		t.Error("expected error from 500 response")
	}
}
