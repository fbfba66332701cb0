package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUploadPostsMultipartFiles(t *testing.T) {
	var names []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, fh := range r.MultipartForm.File["files"] {
			names = append(names, fh.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","version":1}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("%PDF-1.4"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	cmd := uploadCMD()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--server", srv.URL + "/", a, b})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(names) != 2 || names[0] != "a.pdf" || names[1] != "b.pdf" {
		t.Fatalf("unexpected uploaded files %v", names)
	}
	if !strings.Contains(out.String(), `"version":1`) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestUploadReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no text"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := uploadCMD()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--server", srv.URL, p})
	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected 422 error, got %v", err)
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\n  b\tc", 10); got != "a b c" {
		t.Fatalf("got %q", got)
	}
	if got := oneLine("abcdef", 3); got != "abc…" {
		t.Fatalf("got %q", got)
	}
}
