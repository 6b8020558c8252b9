package redmine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// CreateProject POSTs /projects.json. The returned id is valid only when
// err is nil.
func (c *Client) CreateProject(ctx context.Context, p ProjectPayload) (int64, error) {
	body, _, err := c.post(ctx, "/projects.json", map[string]ProjectPayload{"project": p})
	if err != nil {
		return 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil || env.Project == nil {
		return 0, fmt.Errorf("redmine: create project: unexpected response")
	}
	return env.Project.ID, nil
}

// CreateUser POSTs /users.json.
func (c *Client) CreateUser(ctx context.Context, p UserPayload) (int64, error) {
	body, _, err := c.post(ctx, "/users.json", map[string]UserPayload{"user": p})
	if err != nil {
		return 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil || env.User == nil {
		return 0, fmt.Errorf("redmine: create user: unexpected response")
	}
	return env.User.ID, nil
}

// CreateIssue POSTs /issues.json.
func (c *Client) CreateIssue(ctx context.Context, p IssuePayload) (int64, error) {
	body, _, err := c.post(ctx, "/issues.json", map[string]IssuePayload{"issue": p})
	if err != nil {
		return 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil || env.Issue == nil {
		return 0, fmt.Errorf("redmine: create issue: unexpected response")
	}
	return env.Issue.ID, nil
}

// UpdateIssueJournal writes a journal to an issue, spec.md §4.9. With the
// extended API it PATCHes with explicit journal.{user_id,created_on,
// updated_on}; otherwise it PUTs notes alone, relying on the caller to
// have already appended the "<!-- MIGRATE:{id} -->" locate token.
func (c *Client) UpdateIssueJournal(ctx context.Context, issueID int64, p IssueUpdatePayload, useExtended bool) error {
	path := fmt.Sprintf("/issues/%d.json", issueID)
	var err error
	if useExtended {
		_, _, err = c.patch(ctx, c.ExtendedAPIPrefix+path, map[string]IssueUpdatePayload{"issue": p})
	} else {
		p.Journal = nil
		_, _, err = c.put(ctx, path, map[string]IssueUpdatePayload{"issue": p})
	}
	return err
}

// SetParentIssue PUTs parent_issue_id onto a child issue, spec.md §4.9's
// subtask step.
func (c *Client) SetParentIssue(ctx context.Context, childID, parentID int64) error {
	path := fmt.Sprintf("/issues/%d.json", childID)
	_, _, err := c.put(ctx, path, map[string]SubtaskUpdatePayload{
		"issue": {ParentIssueID: parentID},
	})
	return err
}

// AddWatcher POSTs to /issues/{id}/watchers.json. A response body
// containing "is already watching" is treated as success per spec.md §4.9,
// since Redmine reports that case as a 4xx on some versions.
func (c *Client) AddWatcher(ctx context.Context, issueID, userID int64) error {
	path := fmt.Sprintf("/issues/%d/watchers.json", issueID)
	_, _, err := c.post(ctx, path, WatcherPayload{UserID: userID})
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && strings.Contains(strings.ToLower(string(statusErr.Body)), "is already watching") {
		return nil
	}
	return err
}

// GetIssueDetail fetches GET /issues/{id}.json?include=... used by the
// attachment-association step (§4.8 step 4) and the journal-locate step
// (§4.9).
func (c *Client) GetIssueDetail(ctx context.Context, issueID int64, include string) (IssueDetail, error) {
	var detail IssueDetail
	q := url.Values{}
	if include != "" {
		q.Set("include", include)
	}
	body, err := c.get(ctx, fmt.Sprintf("/issues/%d.json", issueID), q)
	if err != nil {
		return detail, err
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		return detail, fmt.Errorf("redmine: decode issue detail: %w", err)
	}
	return detail, nil
}
