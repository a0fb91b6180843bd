package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCheckReachableUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, time.Second, zerolog.Nop(), nil)
	if !p.CheckReachable(context.Background()) {
		t.Fatal("expected reachable")
	}
	if !p.Reachable() {
		t.Fatal("expected cached result to be reachable")
	}
}

func TestCheckReachableNon2xxStillReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := New(srv.URL, time.Second, zerolog.Nop(), nil)
	if !p.CheckReachable(context.Background()) {
		t.Fatal("an HTTP response of any status means the origin is reachable")
	}
}

func TestCheckReachableDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p := New(srv.URL, 500*time.Millisecond, zerolog.Nop(), nil)
	if p.CheckReachable(context.Background()) {
		t.Fatal("expected unreachable")
	}
	if p.Reachable() {
		t.Fatal("expected cached result to be unreachable")
	}
}

func TestReachableDefaultsOptimistic(t *testing.T) {
	p := New("http://localhost:0", time.Second, zerolog.Nop(), nil)
	if !p.Reachable() {
		t.Fatal("expected probe to assume reachable before any check")
	}
}

func TestCloseStopsBackgroundLoop(t *testing.T) {
	hits := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	p := New(srv.URL, time.Second, zerolog.Nop(), nil)
	p.Start(10 * time.Millisecond)

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("background probe never ran")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
