package jiraclient

import "encoding/json"

// Project is one row of /rest/api/3/project/search.
type Project struct {
	ID          string          `json:"id"`
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Lead        *User           `json:"lead"`
	Raw         json.RawMessage `json:"-"`
}

// User is one row of /rest/api/3/users/search, and doubles as the author/
// assignee/watcher/lead shape embedded in other payloads.
type User struct {
	AccountID    string          `json:"accountId"`
	DisplayName  string          `json:"displayName"`
	EmailAddress string          `json:"emailAddress"`
	Active       bool            `json:"active"`
	AccountType  string          `json:"accountType"`
	Raw          json.RawMessage `json:"-"`
}

// Issue is one row from the /search/jql endpoint, left mostly as raw JSON:
// the Reconciler and ContentRewriter each need different subsets of
// `fields`, which is more reliably consumed from the stored raw_payload
// than from a single flattened Go struct.
type Issue struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
	Raw    json.RawMessage `json:"-"`
}

// Comment is one row of /rest/api/3/issue/{id}/comment.
type Comment struct {
	ID  string          `json:"id"`
	Raw json.RawMessage `json:"-"`
}

// ChangelogEntry is one row of /rest/api/3/issue/{id}/changelog.
type ChangelogEntry struct {
	ID  string          `json:"id"`
	Raw json.RawMessage `json:"-"`
}

// Watcher is one row of the `watchers` array returned by
// /rest/api/3/issue/{id}/watchers.
type Watcher struct {
	AccountID   string          `json:"accountId"`
	DisplayName string          `json:"displayName"`
	Raw         json.RawMessage `json:"-"`
}

// Attachment is the attachment descriptor embedded in an issue's
// fields.attachment array.
type Attachment struct {
	ID       string          `json:"id"`
	Filename string          `json:"filename"`
	Size     int64           `json:"size"`
	Content  string          `json:"content"` // binary download URL
	MimeType string          `json:"mimeType"`
	Raw      json.RawMessage `json:"-"`
}
