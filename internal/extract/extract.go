// Package extract implements JiraExtractor: paginated pulls of Jira
// projects, users, issues, comments, changelog, and watchers into the
// staging tables, following the same "paginate, stage each page, record
// per-item failures without aborting the run" shape as the teacher's
// internal/jira/tracker.go FetchIssues loop, generalized from one entity
// to six.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/jiraclient"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

// Extractor pulls Jira entity families into staging. PageSize governs every
// paginated endpoint; 50-100 matches Jira's own defaults.
type Extractor struct {
	Client   *jiraclient.Client
	Store    *store.Store
	PageSize int
	// Since, when non-zero, restricts ExtractIssues/ExtractAllIssues to
	// issues updated on or after this time, for the CLI's `--since` flag
	// (natural-language or RFC3339, resolved to a time.Time before this
	// field is set).
	Since time.Time
	now   func() time.Time
}

// New constructs an Extractor with sane defaults.
func New(client *jiraclient.Client, st *store.Store) *Extractor {
	return &Extractor{Client: client, Store: st, PageSize: 100, now: time.Now}
}

// Summary tallies one extraction run, printed by PhaseOrchestrator at the
// end of the `jira` phase.
type Summary struct {
	Staged  int
	Skipped int
	Failed  int
}

func (s *Summary) add(other Summary) {
	s.Staged += other.Staged
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// ExtractProjects pages through /rest/api/3/project/search and upserts
// every project into staging_jira_projects.
func (e *Extractor) ExtractProjects(ctx context.Context) (Summary, error) {
	var sum Summary
	startAt := 0
	for {
		page, err := e.Client.FetchProjects(ctx, startAt, e.PageSize)
		if err != nil {
			return sum, fmt.Errorf("extract projects: %w", err)
		}
		for _, raw := range page.Items {
			id, err := rawFieldString(raw, "id")
			if err != nil {
				sum.Skipped++
				continue
			}
			if err := e.Store.UpsertStagingProject(ctx, nil, store.StagingProject{
				JiraProjectID: id,
				RawPayload:    raw,
				ExtractedAt:   e.now(),
			}); err != nil {
				return sum, fmt.Errorf("stage project %s: %w", id, err)
			}
			sum.Staged++
		}
		if !page.HasMore {
			break
		}
		startAt = page.NextStartAt
	}
	return sum, nil
}

// ExtractUsers pages through /rest/api/3/users/search.
func (e *Extractor) ExtractUsers(ctx context.Context) (Summary, error) {
	var sum Summary
	startAt := 0
	for {
		page, err := e.Client.FetchUsers(ctx, startAt, e.PageSize)
		if err != nil {
			return sum, fmt.Errorf("extract users: %w", err)
		}
		for _, raw := range page.Items {
			id, err := rawFieldString(raw, "accountId")
			if err != nil {
				sum.Skipped++
				continue
			}
			if err := e.Store.UpsertStagingUser(ctx, nil, store.StagingUser{
				JiraAccountID: id,
				RawPayload:    raw,
				ExtractedAt:   e.now(),
			}); err != nil {
				return sum, fmt.Errorf("stage user %s: %w", id, err)
			}
			sum.Staged++
		}
		if !page.HasMore {
			break
		}
		startAt = page.NextStartAt
	}
	return sum, nil
}

// ExtractIssues pages through POST /search/jql for one project's JQL,
// keyset-paginated on id, then stages each issue's comments, changelog,
// and watchers. It marks the project's issues_extracted_at only when every
// page and every per-issue sub-fetch succeeded, per spec.md §4.3 — partial
// failure leaves the flag unset so the next run resumes.
func (e *Extractor) ExtractIssues(ctx context.Context, projectKey string, mappingID int64) (Summary, error) {
	var sum Summary
	lastID := ""
	allOK := true

	jql := fmt.Sprintf("project = %s", projectKey)
	if !e.Since.IsZero() {
		jql += fmt.Sprintf(` AND updated >= "%s"`, e.Since.Format("2006-01-02 15:04"))
	}

	for {
		page, err := e.Client.SearchIssuesByJQL(ctx, jql, lastID, e.PageSize)
		if err != nil {
			return sum, fmt.Errorf("extract issues for %s: %w", projectKey, err)
		}

		for _, raw := range page.Items {
			id, err := rawFieldString(raw, "id")
			if err != nil {
				sum.Skipped++
				continue
			}
			key, _ := rawFieldString(raw, "key")

			if err := e.Store.UpsertStagingIssue(ctx, nil, store.StagingIssue{
				JiraIssueID:  id,
				JiraIssueKey: key,
				RawPayload:   raw,
				ExtractedAt:  e.now(),
			}); err != nil {
				return sum, fmt.Errorf("stage issue %s: %w", key, err)
			}
			sum.Staged++

			subSum, ok := e.extractIssueSubResources(ctx, id)
			sum.add(subSum)
			if !ok {
				allOK = false
			}
		}

		if !page.HasMore {
			break
		}
		lastID = page.NextID
	}

	if allOK {
		if err := e.Store.MarkIssuesExtracted(ctx, mappingID, e.now()); err != nil {
			return sum, fmt.Errorf("mark issues_extracted_at for project mapping %d: %w", mappingID, err)
		}
	}

	return sum, nil
}

// ExtractAllIssues runs ExtractIssues for every staged project, for the
// issues family's jira phase (spec.md §4.10) which has no single project
// scope of its own. One project's failure is fatal to the whole phase,
// consistent with ExtractIssues leaving issues_extracted_at unset on
// partial failure for that project alone.
func (e *Extractor) ExtractAllIssues(ctx context.Context) (Summary, error) {
	var sum Summary
	projects, err := e.Store.FetchProjectsForIssueExtraction(ctx)
	if err != nil {
		return sum, fmt.Errorf("list projects for issue extraction: %w", err)
	}
	for _, proj := range projects {
		key, err := rawFieldString(proj.RawPayload, "key")
		if err != nil {
			sum.Skipped++
			continue
		}
		projSum, err := e.ExtractIssues(ctx, key, proj.MappingID)
		sum.add(projSum)
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// issueAttachmentFields extracts the attachment array Jira embeds directly
// on the issue resource, so attachments need no separate paginated Jira
// endpoint the way comments/changelog/watchers do.
type issueAttachmentFields struct {
	Fields struct {
		Attachment []json.RawMessage `json:"attachment"`
	} `json:"fields"`
}

// ExtractAttachments stages one staging_jira_attachments row per attachment
// embedded in every already-staged issue's fields.attachment array. It runs
// after ExtractAllIssues in the attachments family's jira phase (spec.md
// §4.10), grounded on the same raw-payload-parsing idiom rawFieldString
// already uses for issue/project/user ids.
func (e *Extractor) ExtractAttachments(ctx context.Context) (Summary, error) {
	var sum Summary
	issues, err := e.Store.FetchStagedIssues(ctx)
	if err != nil {
		return sum, fmt.Errorf("list staged issues for attachment extraction: %w", err)
	}

	for _, issue := range issues {
		var parsed issueAttachmentFields
		if err := json.Unmarshal(issue.RawPayload, &parsed); err != nil {
			sum.Skipped++
			continue
		}
		for _, raw := range parsed.Fields.Attachment {
			id, err := rawFieldString(raw, "id")
			if err != nil {
				sum.Skipped++
				continue
			}
			if err := e.Store.UpsertStagingAttachment(ctx, nil, store.StagingAttachment{
				JiraAttachmentID: id,
				JiraIssueID:      issue.JiraIssueID,
				RawPayload:       raw,
				ExtractedAt:      e.now(),
			}); err != nil {
				return sum, fmt.Errorf("stage attachment %s: %w", id, err)
			}
			sum.Staged++
		}
	}
	return sum, nil
}

// extractIssueSubResources fetches comments, changelog, and watchers for one
// issue. A 401/403/404 on any of them is recorded as WARNING and does not
// fail the run; any other error is recorded FAILED and makes this issue
// count against allOK so issues_extracted_at is not advanced.
func (e *Extractor) extractIssueSubResources(ctx context.Context, issueID string) (Summary, bool) {
	var sum Summary
	ok := true

	if n, err := e.extractComments(ctx, issueID); err != nil {
		if !e.recordOutcome(ctx, issueID, "comments", err) {
			ok = false
		}
	} else {
		sum.Staged += n
	}

	if n, err := e.extractChangelog(ctx, issueID); err != nil {
		if !e.recordOutcome(ctx, issueID, "changelog", err) {
			ok = false
		}
	} else {
		sum.Staged += n
	}

	if n, err := e.extractWatchers(ctx, issueID); err != nil {
		if !e.recordOutcome(ctx, issueID, "watchers", err) {
			ok = false
		}
	} else {
		sum.Staged += n
	}

	return sum, ok
}

// recordOutcome classifies err per spec.md §4.3 and writes issue_extract_state.
// It returns true if the run may still proceed (a WARNING), false if the
// failure should block issues_extracted_at from advancing (a FAILED).
func (e *Extractor) recordOutcome(ctx context.Context, issueID, kind string, err error) bool {
	status, message := classifyExtractError(err)
	if setErr := e.Store.SetIssueExtractState(ctx, issueID, kind, status, message); setErr != nil {
		// Bookkeeping failure is itself fatal-ish for this sub-resource;
		// treat conservatively as blocking.
		return false
	}
	return status == "WARNING"
}

func classifyExtractError(err error) (status, message string) {
	var statusErr *jiraclient.StatusError
	if asStatusError(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 403, 404:
			return "WARNING", statusErr.Error()
		}
	}
	return "FAILED", err.Error()
}

func asStatusError(err error, target **jiraclient.StatusError) bool {
	se, ok := err.(*jiraclient.StatusError)
	if ok {
		*target = se
	}
	return ok
}

func (e *Extractor) extractComments(ctx context.Context, issueID string) (int, error) {
	n := 0
	startAt := 0
	for {
		page, err := e.Client.FetchComments(ctx, issueID, startAt, e.PageSize)
		if err != nil {
			return n, err
		}
		for _, raw := range page.Items {
			id, err := rawFieldString(raw, "id")
			if err != nil {
				continue
			}
			if err := e.Store.UpsertStagingComment(ctx, nil, store.StagingComment{
				JiraCommentID: id,
				JiraIssueID:   issueID,
				RawPayload:    raw,
				ExtractedAt:   e.now(),
			}); err != nil {
				return n, err
			}
			n++
		}
		if !page.HasMore {
			break
		}
		startAt = page.NextStartAt
	}
	return n, nil
}

func (e *Extractor) extractChangelog(ctx context.Context, issueID string) (int, error) {
	n := 0
	startAt := 0
	for {
		page, err := e.Client.FetchChangelog(ctx, issueID, startAt, e.PageSize)
		if err != nil {
			return n, err
		}
		for _, raw := range page.Items {
			id, err := rawFieldString(raw, "id")
			if err != nil {
				continue
			}
			if err := e.Store.UpsertStagingChangelog(ctx, nil, store.StagingChangelog{
				JiraChangelogID: id,
				JiraIssueID:     issueID,
				RawPayload:      raw,
				ExtractedAt:     e.now(),
			}); err != nil {
				return n, err
			}
			n++
		}
		if !page.HasMore {
			break
		}
		startAt = page.NextStartAt
	}
	return n, nil
}

func (e *Extractor) extractWatchers(ctx context.Context, issueID string) (int, error) {
	watchers, err := e.Client.FetchWatchers(ctx, issueID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, raw := range watchers {
		acct, err := rawFieldString(raw, "accountId")
		if err != nil {
			continue
		}
		if err := e.Store.UpsertStagingWatcher(ctx, nil, store.StagingWatcher{
			JiraIssueID:   issueID,
			JiraAccountID: acct,
			RawPayload:    raw,
			ExtractedAt:   e.now(),
		}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func rawFieldString(raw json.RawMessage, field string) (string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	v, ok := m[field]
	if !ok {
		return "", fmt.Errorf("field %q not present", field)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", err
	}
	return s, nil
}
