package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestFetch_Image(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	}))
	defer srv.Close()

	got, err := New(srv.Client()).Fetch(context.Background(), srv.URL+"/look.jpg")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	if got != want {
		t.Errorf("Fetch = %q, want %q", got, want)
	}
}

func TestFetch_SniffsMissingContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(pngHeader)
	}))
	defer srv.Close()

	got, err := New(srv.Client()).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("Fetch = %q, want png data URI", got)
	}
}

func TestFetch_FollowsOGImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><meta property="og:image" content="/img/look.png"></head><body></body></html>`)
	})
	mux.HandleFunc("/img/look.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := New(srv.Client()).Fetch(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("Fetch = %q", got)
	}
}

func TestFetch_HTMLWithoutImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>nothing</title></head></html>`)
	}))
	defer srv.Close()

	_, err := New(srv.Client()).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errNoOGImage) {
		t.Errorf("error = %v, want errNoOGImage", err)
	}
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "hello")
		}
	}))
	defer srv.Close()

	f := New(srv.Client())
	for _, u := range []string{srv.URL + "/forbidden", srv.URL + "/text", "ftp://example.com/a.jpg", "://bad"} {
		_, err := f.Fetch(context.Background(), u)
		var fe *Error
		if !errors.As(err, &fe) {
			t.Errorf("Fetch(%q) error = %v, want *Error", u, err)
			continue
		}
		if fe.URL != u {
			t.Errorf("Error.URL = %q, want %q", fe.URL, u)
		}
	}
}

func TestFetch_CoalescesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer srv.Close()

	f := New(srv.Client())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
				t.Errorf("Fetch: %v", err)
			}
		}()
	}
	// Give the goroutines time to join the in-flight call.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestFetch_CancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer srv.Close()

	f := New(srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, srv.URL)
		first <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), srv.URL)
		second <- err
	}()
	// Give the second caller time to join the in-flight call.
	time.Sleep(100 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first Fetch error = %v, want context.Canceled", err)
	}
	close(release)
	if err := <-second; err != nil {
		t.Errorf("second Fetch: %v", err)
	}
}

func TestOGImageTwitterFallback(t *testing.T) {
	page := []byte(`<html><head><meta name="twitter:image" content="https://cdn.example/x.jpg"></head></html>`)
	if got := ogImage(page); got != "https://cdn.example/x.jpg" {
		t.Errorf("ogImage = %q", got)
	}
}
