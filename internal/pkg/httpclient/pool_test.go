package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPooledClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	client := NewPooledClient(DefaultConfig())
	resp, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Errorf("body = %q, want %q", body, "pong")
	}
}

func TestPooledClientTracksCircuitPerHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewPooledClient(DefaultConfig())
	// The circuit breaker only counts Do() errors, not HTTP error
	// statuses, since the pool has no opinion on application semantics.
	for i := 0; i < 3; i++ {
		resp, err := client.Get(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()
	}

	states := client.CircuitStates()
	if len(states) == 0 {
		t.Error("expected the host's circuit breaker to be tracked after requests")
	}
}

func TestRequestBuilderSetsHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewPooledClient(DefaultConfig())
	resp, err := client.NewRequest(http.MethodGet, srv.URL).
		Header("Authorization", "Bearer token123").
		Do(context.Background())
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer token123" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer token123")
	}
}
