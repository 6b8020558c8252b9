package redmine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

// Snapshotter implements RedmineSnapshotter, spec.md §4.4: read-only
// enumerations of Redmine projects and users used to build the
// Reconciler's match lookups. Both snapshots are truncate-and-reload —
// the staging_redmine_* tables always reflect the latest pull.
type Snapshotter struct {
	Client   *Client
	Store    *store.Store
	PageSize int
	now      func() time.Time
}

// NewSnapshotter constructs a Snapshotter with sane defaults.
func NewSnapshotter(client *Client, st *store.Store) *Snapshotter {
	return &Snapshotter{Client: client, Store: st, PageSize: 100, now: time.Now}
}

type projectListResponse struct {
	Projects   []json.RawMessage `json:"projects"`
	TotalCount int               `json:"total_count"`
	Offset     int               `json:"offset"`
	Limit      int               `json:"limit"`
}

// SnapshotProjects pages through GET /projects.json?include=trackers and
// replaces staging_redmine_projects wholesale.
func (s *Snapshotter) SnapshotProjects(ctx context.Context) (int, error) {
	var rows []store.StagingRedmineProject
	offset := 0
	at := s.now()

	for {
		q := url.Values{
			"include": {"trackers"},
			"limit":   {strconv.Itoa(s.PageSize)},
			"offset":  {strconv.Itoa(offset)},
		}
		body, err := s.Client.get(ctx, "/projects.json", q)
		if err != nil {
			return 0, fmt.Errorf("snapshot projects: %w", err)
		}
		var page projectListResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("snapshot projects: decode: %w", err)
		}
		for _, raw := range page.Projects {
			id, err := rawFieldInt(raw, "id")
			if err != nil {
				continue
			}
			rows = append(rows, store.StagingRedmineProject{
				RedmineProjectID: id,
				RawPayload:       raw,
				ExtractedAt:      at,
			})
		}
		offset += len(page.Projects)
		if len(page.Projects) == 0 || offset >= page.TotalCount {
			break
		}
	}

	if err := s.Store.ReplaceRedmineProjects(ctx, rows); err != nil {
		return 0, fmt.Errorf("snapshot projects: %w", err)
	}
	return len(rows), nil
}

type userListResponse struct {
	Users      []json.RawMessage `json:"users"`
	TotalCount int               `json:"total_count"`
}

// SnapshotUsers enumerates every user via GET /users.json?status=*, then
// fetches each one individually via GET /users/{id}.json to capture mail
// and status — the list endpoint omits mail for non-admin keys, and an
// admin key is required for this snapshot to be meaningful at all. A user
// record with no mail address is a fatal error for the whole snapshot per
// spec.md §4.4, since the Reconciler's user-matching lookup is keyed on it.
func (s *Snapshotter) SnapshotUsers(ctx context.Context) (int, error) {
	var ids []int64
	offset := 0
	for {
		q := url.Values{
			"status": {"*"},
			"limit":  {strconv.Itoa(s.PageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		body, err := s.Client.get(ctx, "/users.json", q)
		if err != nil {
			return 0, fmt.Errorf("snapshot users: list: %w", err)
		}
		var page userListResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("snapshot users: decode list: %w", err)
		}
		for _, raw := range page.Users {
			id, err := rawFieldInt(raw, "id")
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		offset += len(page.Users)
		if len(page.Users) == 0 || offset >= page.TotalCount {
			break
		}
	}

	at := s.now()
	rows := make([]store.StagingRedmineUser, 0, len(ids))
	for _, id := range ids {
		body, err := s.Client.get(ctx, fmt.Sprintf("/users/%d.json", id), nil)
		if err != nil {
			return 0, fmt.Errorf("snapshot users: fetch %d: %w", id, err)
		}
		mail, err := rawFieldString(body, "user", "mail")
		if err != nil || mail == "" {
			return 0, fmt.Errorf("snapshot users: user %d has no mail address on file", id)
		}
		rows = append(rows, store.StagingRedmineUser{
			RedmineUserID: id,
			RawPayload:    body,
			ExtractedAt:   at,
		})
	}

	if err := s.Store.ReplaceRedmineUsers(ctx, rows); err != nil {
		return 0, fmt.Errorf("snapshot users: %w", err)
	}
	return len(rows), nil
}

func rawFieldInt(raw json.RawMessage, field string) (int64, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0, err
	}
	v, ok := m[field]
	if !ok {
		return 0, fmt.Errorf("field %q not present", field)
	}
	var n int64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// rawFieldString decodes envelope[outer][inner] as a string, used to pull
// the user detail response's nested "mail" field without a full typed
// decode of every field Redmine returns.
func rawFieldString(raw json.RawMessage, outer, inner string) (string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	o, ok := m[outer]
	if !ok {
		return "", fmt.Errorf("field %q not present", outer)
	}
	var inm map[string]json.RawMessage
	if err := json.Unmarshal(o, &inm); err != nil {
		return "", err
	}
	v, ok := inm[inner]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", err
	}
	return s, nil
}
