package jiraclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, "bot@example.com", "token")
	c.HTTPClient = srv.Client()
	return c
}

func TestFetchProjectsPagination(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.Write([]byte(`{"startAt":0,"maxResults":2,"total":3,"isLast":false,"values":[{"id":"1"},{"id":"2"}]}`))
			return
		}
		w.Write([]byte(`{"startAt":2,"maxResults":2,"total":3,"isLast":true,"values":[{"id":"3"}]}`))
	})

	page, err := c.FetchProjects(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("FetchProjects: %v", err)
	}
	if len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("page 1: got %d items, hasMore=%v", len(page.Items), page.HasMore)
	}

	page2, err := c.FetchProjects(context.Background(), page.NextStartAt, 2)
	if err != nil {
		t.Fatalf("FetchProjects page 2: %v", err)
	}
	if len(page2.Items) != 1 || page2.HasMore {
		t.Fatalf("page 2: got %d items, hasMore=%v", len(page2.Items), page2.HasMore)
	}
}

func TestDoRequestRetries429WithRetryAfter(t *testing.T) {
	var calls int32
	start := time.Now()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"errorMessages":["rate limited"]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"values":[],"isLast":true,"startAt":0,"total":0}`))
	})

	_, err := c.FetchProjects(context.Background(), 0, 50)
	if err != nil {
		t.Fatalf("FetchProjects: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls (1 retry), got %d", calls)
	}
	if time.Since(start) < 1*time.Second {
		t.Fatalf("expected Retry-After: 1 to delay at least 1s, took %v", time.Since(start))
	}
}

func TestDoRequestDoesNotRetryPermanentClientErrors(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorMessages":["issue does not exist"]}`))
	})

	_, err := c.FetchComments(context.Background(), "ISSUE-1", 0, 50)
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", statusErr.StatusCode)
	}
	if calls != 1 {
		t.Fatalf("404 must not be retried, got %d calls", calls)
	}
}

func TestSearchIssuesByJQLKeysetPagination(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issues":[{"id":"101"},{"id":"102"}],"isLast":false}`))
	})

	page, err := c.SearchIssuesByJQL(context.Background(), "project = ABC", "", 50)
	if err != nil {
		t.Fatalf("SearchIssuesByJQL: %v", err)
	}
	if len(page.Items) != 2 || page.NextID != "102" || !page.HasMore {
		t.Fatalf("got items=%d nextID=%q hasMore=%v", len(page.Items), page.NextID, page.HasMore)
	}
}

func TestSetAuthUsesBasicAuth(t *testing.T) {
	var gotAuth string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	})

	if _, err := c.doRequest(context.Background(), http.MethodGet, c.BaseURL+"/rest/api/3/myself", nil); err != nil {
		t.Fatalf("doRequest: %v", err)
	}
	if gotAuth == "" || gotAuth[:6] != "Basic " {
		t.Fatalf("expected Basic auth header, got %q", gotAuth)
	}
}

func TestRetryAfterParsing(t *testing.T) {
	tests := []struct {
		header string
		wantOK bool
		want   time.Duration
	}{
		{"3", true, 3 * time.Second},
		{"0", false, 0},
		{"-1", false, 0},
		{"not-a-number", false, 0},
		{"", false, 0},
	}
	for _, tt := range tests {
		got, ok := retryAfter(tt.header)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("retryAfter(%q) = %v,%v want %v,%v", tt.header, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFetchWatchersUnwrapsEnvelope(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"watchers":[{"accountId":"u1"},{"accountId":"u2"}]}`))
	})

	watchers, err := c.FetchWatchers(context.Background(), "ISSUE-1")
	if err != nil {
		t.Fatalf("FetchWatchers: %v", err)
	}
	if len(watchers) != 2 {
		t.Fatalf("expected 2 watchers, got %d", len(watchers))
	}
}

func TestFetchUsersEndOfPageDetection(t *testing.T) {
	maxResults := 2
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		w.Header().Set("Content-Type", "application/json")
		if startAt == 0 {
			w.Write([]byte(`[{"accountId":"a"},{"accountId":"b"}]`))
			return
		}
		w.Write([]byte(`[{"accountId":"c"}]`))
	})

	page1, err := c.FetchUsers(context.Background(), 0, maxResults)
	if err != nil || !page1.HasMore {
		t.Fatalf("page1: err=%v hasMore=%v", err, page1.HasMore)
	}
	page2, err := c.FetchUsers(context.Background(), page1.NextStartAt, maxResults)
	if err != nil || page2.HasMore {
		t.Fatalf("page2: err=%v hasMore=%v", err, page2.HasMore)
	}
}
