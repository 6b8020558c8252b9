package redmine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, "test-api-key")
	c.HTTPClient = srv.Client()
	return c
}

func TestSetAuthUsesAPIKeyHeader(t *testing.T) {
	var gotKey string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Redmine-API-Key")
		w.Write([]byte(`{"project":{"id":1}}`))
	})

	if _, err := c.CreateProject(context.Background(), ProjectPayload{Name: "Demo", Identifier: "demo"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if gotKey != "test-api-key" {
		t.Fatalf("expected X-Redmine-API-Key header, got %q", gotKey)
	}
}

func TestCreateProjectParsesID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"project":{"id":42,"identifier":"demo"}}`))
	})

	id, err := c.CreateProject(context.Background(), ProjectPayload{Name: "Demo", Identifier: "demo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
}

func TestCreateProjectFailureReturnsStatusError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":["Identifier is already taken"]}`))
	})

	_, err := c.CreateProject(context.Background(), ProjectPayload{Name: "Demo", Identifier: "demo"})
	if err == nil {
		t.Fatal("expected an error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", statusErr.StatusCode)
	}
	if msg := describePushError(err); msg != "HTTP 422: Identifier is already taken" {
		t.Fatalf("unexpected describePushError: %q", msg)
	}
}

func TestAddWatcherTreatsAlreadyWatchingAsSuccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":["User is already watching"]}`))
	})

	if err := c.AddWatcher(context.Background(), 1, 2); err != nil {
		t.Fatalf("expected 'already watching' to be treated as success, got %v", err)
	}
}

func TestAddWatcherPropagatesOtherErrors(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":["Issue not found"]}`))
	})

	if err := c.AddWatcher(context.Background(), 1, 2); err == nil {
		t.Fatal("expected an error")
	}
}

func TestProbeExtendedAPIRequiresHeader(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Redmine-Extended-API", "1")
		w.Write([]byte(`{}`))
	})
	if !c.ProbeExtendedAPI(context.Background()) {
		t.Fatal("expected extended API to be detected")
	}
	if !c.HasExtendedAPI() {
		t.Fatal("expected HasExtendedAPI to cache true")
	}
}

func TestProbeExtendedAPIAbsentHeader(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	if c.ProbeExtendedAPI(context.Background()) {
		t.Fatal("expected extended API to be absent")
	}
}

func TestDoRequestRetries503WithBackoff(t *testing.T) {
	var calls int32
	start := time.Now()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"maintenance"}`))
			return
		}
		w.Write([]byte(`{"project":{"id":7}}`))
	})

	id, err := c.CreateProject(context.Background(), ProjectPayload{Name: "Demo", Identifier: "demo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls (1 retry), got %d", calls)
	}
	if time.Since(start) < 1*time.Second {
		t.Fatalf("expected at least 1s of backoff before success, took %v", time.Since(start))
	}
}

func TestExtractErrorMessagePrefersErrorsArray(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"errors":["a","b"]}`, "a; b"},
		{`{"error":"solo"}`, "solo"},
		{`plain text body`, "plain text body"},
	}
	for _, tt := range tests {
		if got := extractErrorMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("extractErrorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
