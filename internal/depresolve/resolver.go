// Package depresolve implements DependencyResolver, spec.md §4.7: in-memory
// lookups built once per Transform run so the Reconciler's per-row
// derivation doesn't re-query the mapping database for every foreign
// reference. There is no direct teacher equivalent; the closest relative is
// the label/status caches cmd/bd's commands build once per invocation
// before looping over issues.
package depresolve

import (
	"context"
	"fmt"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

// Resolver holds every ready foreign-key lookup for one Transform run.
// Everything except parent issue ids is frozen at construction time —
// spec.md §4.7 notes parent availability changes within a single push run
// as parents are created, so ResolveParentIssueID re-reads the mapping
// table directly instead of consulting a cache.
type Resolver struct {
	store *store.Store

	projects   map[string]int64 // jira_project_id -> redmine_project_id
	trackers   map[string]int64 // jira_issue_type_id -> redmine_tracker_id
	statuses   map[string]int64 // jira_status_id -> redmine_status_id
	priorities map[string]int64 // jira_priority_id -> redmine_priority_id
	users      map[string]int64 // jira_account_id -> redmine_user_id
}

// Build constructs a Resolver by scanning every ready mapping row once.
// Trackers/statuses/priorities come from operator-maintained config tables
// (spec.md §4.4 "sourced from operator-maintained mapping tables rather
// than Redmine") rather than a migrated entity kind, so they're passed in
// directly instead of read from the Store.
func Build(ctx context.Context, st *store.Store, trackers, statuses, priorities map[string]int64) (*Resolver, error) {
	r := &Resolver{
		store:      st,
		projects:   map[string]int64{},
		trackers:   trackers,
		statuses:   statuses,
		priorities: priorities,
		users:      map[string]int64{},
	}
	if r.trackers == nil {
		r.trackers = map[string]int64{}
	}
	if r.statuses == nil {
		r.statuses = map[string]int64{}
	}
	if r.priorities == nil {
		r.priorities = map[string]int64{}
	}

	if err := r.loadReady(ctx, store.KindProject, r.projects); err != nil {
		return nil, fmt.Errorf("depresolve: load projects: %w", err)
	}
	if err := r.loadReady(ctx, store.KindUser, r.users); err != nil {
		return nil, fmt.Errorf("depresolve: load users: %w", err)
	}
	return r, nil
}

// loadReady fills dst with jira_id -> redmine_id for every mapping row in
// kind whose status is ready (MATCH_FOUND or CREATION_SUCCESS), spec.md
// §4.7 ("Only rows with ready status contribute").
func (r *Resolver) loadReady(ctx context.Context, kind store.EntityKind, dst map[string]int64) error {
	rows, err := r.store.FetchMappingsForTransform(ctx, kind)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if !row.Status.IsReady() {
			continue
		}
		id, err := r.redmineIDFor(ctx, kind, row.MappingID)
		if err != nil || id == 0 {
			continue
		}
		dst[row.StagingID] = id
	}
	return nil
}

// redmineIDFor reads back the single redmine_<entity>_id column for one
// mapping row. FetchMappingsForTransform doesn't carry it (it's shaped for
// the automation_hash/raw_payload loop, not id lookups), so this issues a
// narrow follow-up query.
func (r *Resolver) redmineIDFor(ctx context.Context, kind store.EntityKind, mappingID int64) (int64, error) {
	return r.store.RedmineIDForMapping(ctx, kind, mappingID)
}

// ResolveProject maps a Jira project id to its Redmine project id.
func (r *Resolver) ResolveProject(jiraProjectID string) (int64, bool) {
	id, ok := r.projects[jiraProjectID]
	return id, ok
}

// ResolveTracker maps a Jira issue type id to its Redmine tracker id.
func (r *Resolver) ResolveTracker(jiraIssueTypeID string) (int64, bool) {
	id, ok := r.trackers[jiraIssueTypeID]
	return id, ok
}

// ResolveStatus maps a Jira status id to its Redmine status id.
func (r *Resolver) ResolveStatus(jiraStatusID string) (int64, bool) {
	id, ok := r.statuses[jiraStatusID]
	return id, ok
}

// ResolvePriority maps a Jira priority id to its Redmine priority id.
func (r *Resolver) ResolvePriority(jiraPriorityID string) (int64, bool) {
	id, ok := r.priorities[jiraPriorityID]
	return id, ok
}

// ResolveUser maps a Jira account id to its Redmine user id.
func (r *Resolver) ResolveUser(jiraAccountID string) (int64, bool) {
	id, ok := r.users[jiraAccountID]
	return id, ok
}

// ResolveParentIssueID reads the current issue mapping table directly,
// spec.md §4.7: "parent availability changes within a single push run as
// parents are created", so this must never consult a cache frozen at
// Build time.
func (r *Resolver) ResolveParentIssueID(ctx context.Context, jiraParentIssueID string) (int64, bool) {
	id, ok, err := r.store.ResolveReadyIssueRedmineID(ctx, jiraParentIssueID)
	if err != nil {
		return 0, false
	}
	return id, ok
}
