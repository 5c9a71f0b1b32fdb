package workerruntime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetchReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization header = %q, want Bearer secret-token", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	status, body, err := httpFetch(context.Background(), http.MethodPost, srv.URL, `{"x":1}`, "Bearer secret-token")
	if err != nil {
		t.Fatalf("httpFetch() error = %v", err)
	}
	if status != http.StatusCreated {
		t.Errorf("status = %d, want %d", status, http.StatusCreated)
	}
	if body != `{"ok":true}` {
		t.Errorf("body = %q, want %q", body, `{"ok":true}`)
	}
}

func TestHTTPFetchPropagatesTransportError(t *testing.T) {
	_, _, err := httpFetch(context.Background(), http.MethodGet, "http://127.0.0.1:0", "", "")
	if err == nil {
		t.Error("expected an error dialing an unreachable host")
	}
}
