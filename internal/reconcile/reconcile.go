// Package reconcile implements the Reconciler, spec.md §4.6: the per-entity
// Transform step that reads staging + mapping + foreign lookups and writes
// a new proposal plus a classified migration_status, while respecting the
// automation_hash manual-override protocol. Grounded on the teacher's
// internal/jira/tracker.go field-mapping idiom (jiraPriorityToNumeric,
// jiraToTrackerIssue), generalized from one entity to the six kinds this
// system migrates.
package reconcile

import (
	"time"

	"github.com/jcatrysse/jira2redmine/internal/depresolve"
	"github.com/jcatrysse/jira2redmine/internal/hashguard"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

// Defaults holds the operator-configured fallback values the Reconciler
// uses when a foreign dependency can't resolve, spec.md §4.6.
type Defaults struct {
	ProjectID    int64
	TrackerID    int64
	StatusID     int64
	PriorityID   int64
	AuthorID     int64
	AssignedToID int64
	IsPrivate    bool
	UserStatus   string // "ACTIVE" or "LOCKED"; empty means "LOCKED"
}

func (d Defaults) userStatus() string {
	if d.UserStatus == "" {
		return "LOCKED"
	}
	return d.UserStatus
}

// Reconciler runs one Transform pass per entity kind.
type Reconciler struct {
	Store    *store.Store
	Resolver *depresolve.Resolver
	Defaults Defaults
	now      func() time.Time
}

// New constructs a Reconciler.
func New(st *store.Store, resolver *depresolve.Resolver, defaults Defaults) *Reconciler {
	return &Reconciler{Store: st, Resolver: resolver, Defaults: defaults, now: time.Now}
}

// Summary tallies one entity kind's Transform pass.
type Summary struct {
	Updated   int
	Skipped   int
	Overrides int
}

func (s *Summary) add(other Summary) {
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Overrides += other.Overrides
}

// transformableProjectsUsers is the TRANSFORMABLE_STATUSES set shared by
// projects and users, spec.md §4.6.
func transformableProjectsUsers(s store.Status) bool {
	return s == store.StatusPendingAnalysis || s == store.StatusReadyForCreation || s == store.StatusMatchFound
}

// transformableIssues adds CREATION_FAILED to the projects/users set so a
// failed push is reconsidered on the next Transform pass.
func transformableIssues(s store.Status) bool {
	return transformableProjectsUsers(s) || s == store.StatusCreationFailed
}

// transformableAttachments is PENDING_DOWNLOAD/FAILED — transform requeues
// a failed download rather than leaving it stuck.
func transformableAttachments(s store.Status) bool {
	return s == store.StatusPendingDownload || s == store.StatusFailed
}

// transformableJournals is PENDING/READY_FOR_PUSH/FAILED.
func transformableJournals(s store.Status) bool {
	return s == store.StatusPending || s == store.StatusReadyForPush || s == store.StatusFailed
}

// checkOverride computes the hash over the row's currently-persisted
// automated fields and compares it to the stored hash, per spec.md §4.6's
// loop outline. A manual override means the row was edited outside the
// Reconciler since its last write and must be skipped untouched.
func checkOverride(storedHash string, currentFields []hashguard.Field) bool {
	if storedHash == "" {
		return false
	}
	return hashguard.IsManualOverride(storedHash, hashguard.Compute(currentFields))
}
