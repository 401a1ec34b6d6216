package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
)

func TestDoJSONRetriesServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	var out map[string]any
	if _, err := client.DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestNoRetryNeverReplays(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NoRetry(2 * time.Second)
	_, err := DoBodyJSON(context.Background(), client, http.MethodPost, srv.URL, []byte(`{}`), nil, nil)
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", count)
	}
}

func TestDoJSONMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		code   clierr.Code
	}{
		{http.StatusUnauthorized, clierr.CodeAuth},
		{http.StatusForbidden, clierr.CodeAuth},
		{http.StatusTooManyRequests, clierr.CodeRateLimited},
		{http.StatusBadRequest, clierr.CodeRemoteRejected},
		{http.StatusUnprocessableEntity, clierr.CodeRemoteRejected},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))
		client := New(2*time.Second, 0)
		_, err := DoBodyJSON(context.Background(), client, http.MethodGet, srv.URL, nil, nil, nil)
		srv.Close()
		if !clierr.Is(err, tc.code) {
			t.Fatalf("status %d: expected code %d, got %v", tc.status, tc.code, err)
		}
	}
}
