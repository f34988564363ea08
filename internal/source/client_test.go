package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGet_OK(t *testing.T) {
	t.Parallel()
	uaCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uaCh <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.Client(), "releasepush-test")
	b, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(b) != "[]" {
		t.Fatalf("body = %q", b)
	}
	if gotUA := <-uaCh; gotUA != "releasepush-test" {
		t.Fatalf("User-Agent = %q", gotUA)
	}
}

func TestGet_DefaultUserAgentFromPool(t *testing.T) {
	t.Parallel()
	uaCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uaCh <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := NewWithHTTPClient(srv.Client(), "").Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if gotUA := <-uaCh; gotUA == "" || gotUA == "Go-http-client/1.1" {
		t.Fatalf("expected browser UA, got %q", gotUA)
	}
}

func TestGet_NonSuccessIsSingleAttemptFetchError(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewWithHTTPClient(srv.Client(), "").Get(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T (%v)", err, err)
	}
	if fe.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d", fe.StatusCode)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected exactly one attempt, got %d", n)
	}
}

func TestGet_EmptyBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := NewWithHTTPClient(srv.Client(), "").Get(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestGet_Timeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Timeout = 20 * time.Millisecond
	_, err := NewWithHTTPClient(hc, "").Get(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Err == nil {
		t.Fatal("expected wrapped transport error")
	}
}

func TestNew_Proxy(t *testing.T) {
	t.Parallel()
	c, err := New(Options{Proxy: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	tr, ok := c.http.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", c.http.Transport)
	}
	if tr.Proxy == nil {
		t.Fatal("expected proxy to be set")
	}
	if c.http.Timeout != defaultTimeout {
		t.Fatalf("Timeout = %v", c.http.Timeout)
	}

	if _, err := New(Options{Proxy: "http://[::1"}); err == nil {
		t.Fatal("expected error for invalid proxy url")
	}
}

func TestExpandURL(t *testing.T) {
	t.Parallel()
	day := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	got := ExpandURL("https://example.test/series/{date}.json", day)
	if got != "https://example.test/series/20240305.json" {
		t.Fatalf("ExpandURL = %q", got)
	}
}
