package redmine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

func testSnapshotter(t *testing.T, handler http.HandlerFunc) (*Snapshotter, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-api-key")
	c.HTTPClient = srv.Client()

	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := st.MigrateSchema(ctx); err != nil {
		t.Fatalf("MigrateSchema: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	s := NewSnapshotter(c, st)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s, st
}

func TestSnapshotProjectsReplacesStaging(t *testing.T) {
	call := 0
	s, st := testSnapshotter(t, func(w http.ResponseWriter, r *http.Request) {
		call++
		w.Header().Set("Content-Type", "application/json")
		if call == 1 {
			w.Write([]byte(`{"projects":[{"id":1,"identifier":"alpha"}],"total_count":2,"offset":0,"limit":1}`))
			return
		}
		w.Write([]byte(`{"projects":[{"id":2,"identifier":"beta"}],"total_count":2,"offset":1,"limit":1}`))
	})
	s.PageSize = 1

	n, err := s.SnapshotProjects(context.Background())
	if err != nil {
		t.Fatalf("SnapshotProjects: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 projects, got %d", n)
	}

	var count int
	st.DB().QueryRow(`SELECT COUNT(*) FROM staging_redmine_projects`).Scan(&count)
	if count != 2 {
		t.Fatalf("expected 2 rows in staging_redmine_projects, got %d", count)
	}
}

func TestSnapshotProjectsIsTruncateAndReload(t *testing.T) {
	call := 0
	s, st := testSnapshotter(t, func(w http.ResponseWriter, r *http.Request) {
		call++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"projects":[{"id":1,"identifier":"alpha"}],"total_count":1,"offset":0,"limit":100}`))
	})

	if _, err := s.SnapshotProjects(context.Background()); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if _, err := s.SnapshotProjects(context.Background()); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}

	var count int
	st.DB().QueryRow(`SELECT COUNT(*) FROM staging_redmine_projects`).Scan(&count)
	if count != 1 {
		t.Fatalf("expected truncate-and-reload to leave exactly 1 row, got %d", count)
	}
}

func TestSnapshotUsersFailsFastOnMissingMail(t *testing.T) {
	s, _ := testSnapshotter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users.json":
			w.Write([]byte(`{"users":[{"id":1}],"total_count":1}`))
		case "/users/1.json":
			w.Write([]byte(`{"user":{"id":1,"login":"nomail"}}`))
		default:
			http.NotFound(w, r)
		}
	})

	_, err := s.SnapshotUsers(context.Background())
	if err == nil {
		t.Fatal("expected a fatal error for a user with no mail address")
	}
}

func TestSnapshotUsersCapturesMail(t *testing.T) {
	s, st := testSnapshotter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users.json":
			w.Write([]byte(`{"users":[{"id":1}],"total_count":1}`))
		case "/users/1.json":
			w.Write([]byte(`{"user":{"id":1,"login":"jdoe","mail":"jdoe@example.com"}}`))
		default:
			http.NotFound(w, r)
		}
	})

	n, err := s.SnapshotUsers(context.Background())
	if err != nil {
		t.Fatalf("SnapshotUsers: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}

	var count int
	st.DB().QueryRow(`SELECT COUNT(*) FROM staging_redmine_users`).Scan(&count)
	if count != 1 {
		t.Fatalf("expected 1 row in staging_redmine_users, got %d", count)
	}
}
