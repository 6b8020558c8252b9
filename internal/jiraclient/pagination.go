package jiraclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// RawPage is one page of results together with whether more pages remain,
// letting JiraExtractor decide batching/staging-write boundaries itself
// rather than this package buffering an entire entity family in memory.
type RawPage struct {
	Items   []json.RawMessage
	HasMore bool
	// NextStartAt/NextID feed the next call's pagination cursor; callers
	// pass whichever their FetchX variant expects.
	NextStartAt int
	NextID      string
}

// FetchProjects returns one page of /rest/api/3/project/search.
func (c *Client) FetchProjects(ctx context.Context, startAt, maxResults int) (RawPage, error) {
	q := url.Values{
		"expand":     {"lead,description"},
		"startAt":    {fmt.Sprintf("%d", startAt)},
		"maxResults": {fmt.Sprintf("%d", maxResults)},
	}
	body, err := c.get(ctx, "/rest/api/3/project/search", q)
	if err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: fetch projects: %w", err)
	}

	var resp struct {
		StartAt    int               `json:"startAt"`
		MaxResults int               `json:"maxResults"`
		Total      int               `json:"total"`
		IsLast     bool              `json:"isLast"`
		Values     []json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: parse projects page: %w", err)
	}

	next := resp.StartAt + len(resp.Values)
	return RawPage{
		Items:       resp.Values,
		HasMore:     !resp.IsLast && next < resp.Total,
		NextStartAt: next,
	}, nil
}

// FetchUsers returns one page of /rest/api/3/users/search.
func (c *Client) FetchUsers(ctx context.Context, startAt, maxResults int) (RawPage, error) {
	q := url.Values{
		"includeInactiveUsers": {"true"},
		"expand":               {"groups"},
		"startAt":              {fmt.Sprintf("%d", startAt)},
		"maxResults":           {fmt.Sprintf("%d", maxResults)},
	}
	body, err := c.get(ctx, "/rest/api/3/users/search", q)
	if err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: fetch users: %w", err)
	}

	var values []json.RawMessage
	if err := json.Unmarshal(body, &values); err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: parse users page: %w", err)
	}

	// /users/search has no total field; a short page signals the end.
	return RawPage{
		Items:       values,
		HasMore:     len(values) == maxResults,
		NextStartAt: startAt + len(values),
	}, nil
}

// SearchIssuesByJQL returns one page of POST /rest/api/3/search/jql,
// keyset-paginated on id per spec.md §4.3 ("keyset (`id > lastSeen ORDER
// BY id ASC`)"). lastSeenID is "" for the first page.
func (c *Client) SearchIssuesByJQL(ctx context.Context, jql string, lastSeenID string, maxResults int) (RawPage, error) {
	effectiveJQL := jql
	if lastSeenID != "" {
		effectiveJQL = fmt.Sprintf("(%s) AND id > %s ORDER BY id ASC", jql, lastSeenID)
	} else {
		effectiveJQL = fmt.Sprintf("(%s) ORDER BY id ASC", jql)
	}

	payload, err := json.Marshal(map[string]any{
		"jql":        effectiveJQL,
		"maxResults": maxResults,
		"fields":     []string{"*all"},
	})
	if err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: marshal search/jql request: %w", err)
	}

	body, err := c.post(ctx, "/rest/api/3/search/jql", payload)
	if err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: search/jql: %w", err)
	}

	var envelope struct {
		Issues []json.RawMessage `json:"issues"`
		IsLast bool              `json:"isLast"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: parse search/jql response: %w", err)
	}

	var lastID string
	for _, raw := range envelope.Issues {
		var idOnly struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &idOnly); err == nil {
			lastID = idOnly.ID
		}
	}

	return RawPage{
		Items:   envelope.Issues,
		HasMore: !envelope.IsLast && len(envelope.Issues) > 0,
		NextID:  lastID,
	}, nil
}

// FetchComments returns one page of /rest/api/3/issue/{id}/comment.
func (c *Client) FetchComments(ctx context.Context, issueID string, startAt, maxResults int) (RawPage, error) {
	q := url.Values{
		"expand":     {"renderedBody"},
		"startAt":    {fmt.Sprintf("%d", startAt)},
		"maxResults": {fmt.Sprintf("%d", maxResults)},
	}
	body, err := c.get(ctx, "/rest/api/3/issue/"+url.PathEscape(issueID)+"/comment", q)
	if err != nil {
		return RawPage{}, err
	}

	var resp struct {
		StartAt    int               `json:"startAt"`
		MaxResults int               `json:"maxResults"`
		Total      int               `json:"total"`
		Comments   []json.RawMessage `json:"comments"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: parse comments page: %w", err)
	}

	next := resp.StartAt + len(resp.Comments)
	return RawPage{Items: resp.Comments, HasMore: next < resp.Total, NextStartAt: next}, nil
}

// FetchChangelog returns one page of /rest/api/3/issue/{id}/changelog.
func (c *Client) FetchChangelog(ctx context.Context, issueID string, startAt, maxResults int) (RawPage, error) {
	q := url.Values{
		"startAt":    {fmt.Sprintf("%d", startAt)},
		"maxResults": {fmt.Sprintf("%d", maxResults)},
	}
	body, err := c.get(ctx, "/rest/api/3/issue/"+url.PathEscape(issueID)+"/changelog", q)
	if err != nil {
		return RawPage{}, err
	}

	var resp struct {
		StartAt    int               `json:"startAt"`
		MaxResults int               `json:"maxResults"`
		Total      int               `json:"total"`
		Values     []json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return RawPage{}, fmt.Errorf("jiraclient: parse changelog page: %w", err)
	}

	next := resp.StartAt + len(resp.Values)
	return RawPage{Items: resp.Values, HasMore: next < resp.Total, NextStartAt: next}, nil
}

// FetchWatchers returns the full (unpaginated) watcher list for an issue,
// per spec.md §4.3 — Jira's watchers endpoint returns the full set in one
// response.
func (c *Client) FetchWatchers(ctx context.Context, issueID string) ([]json.RawMessage, error) {
	body, err := c.get(ctx, "/rest/api/3/issue/"+url.PathEscape(issueID)+"/watchers", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Watchers []json.RawMessage `json:"watchers"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("jiraclient: parse watchers response: %w", err)
	}
	return resp.Watchers, nil
}

// FetchAttachmentContent reads an attachment's binary content from its
// descriptor's `content` URL fully into memory.
func (c *Client) FetchAttachmentContent(ctx context.Context, contentURL string) ([]byte, error) {
	return c.doRequest(ctx, "GET", contentURL, nil)
}
