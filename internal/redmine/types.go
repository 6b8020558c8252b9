package redmine

import "encoding/json"

// ProjectPayload is the JSON body POSTed to /projects.json, spec.md §4.9.
type ProjectPayload struct {
	Name        string `json:"name"`
	Identifier  string `json:"identifier"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"is_public"`
}

// UserPayload is the JSON body POSTed to /users.json, spec.md §4.9.
type UserPayload struct {
	Login            string `json:"login"`
	Firstname        string `json:"firstname"`
	Lastname         string `json:"lastname"`
	Mail             string `json:"mail"`
	GeneratePassword bool   `json:"generate_password"`
	MustChangePasswd bool   `json:"must_change_passwd"`
	Status           int    `json:"status"`
	AuthSourceID     int64  `json:"auth_source_id,omitempty"`
}

// Upload references an attachment token consumed by an issue or journal
// create/update call, spec.md §4.8 step 4.
type Upload struct {
	Token       string `json:"token"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// IssuePayload is the JSON body POSTed to /issues.json, spec.md §4.9.
type IssuePayload struct {
	ProjectID      int64    `json:"project_id"`
	TrackerID      int64    `json:"tracker_id"`
	StatusID       int64    `json:"status_id,omitempty"`
	PriorityID     int64    `json:"priority_id,omitempty"`
	AuthorID       int64    `json:"author_id,omitempty"`
	AssignedToID   int64    `json:"assigned_to_id,omitempty"`
	ParentIssueID  int64    `json:"parent_issue_id,omitempty"`
	Subject        string   `json:"subject"`
	Description    string   `json:"description,omitempty"`
	StartDate      string   `json:"start_date,omitempty"`
	DueDate        string   `json:"due_date,omitempty"`
	DoneRatio      int      `json:"done_ratio,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	IsPrivate      bool     `json:"is_private,omitempty"`
	Uploads        []Upload `json:"uploads,omitempty"`
}

// JournalField is the nested "journal" object used by the extended-API
// PATCH path, spec.md §4.9.
type JournalField struct {
	UserID      int64  `json:"user_id,omitempty"`
	UpdatedByID int64  `json:"updated_by_id,omitempty"`
	CreatedOn   string `json:"created_on,omitempty"`
	UpdatedOn   string `json:"updated_on,omitempty"`
}

// IssueUpdatePayload is the JSON body PUT/PATCHed to /issues/{id}.json for
// a journal push, spec.md §4.9.
type IssueUpdatePayload struct {
	Notes     string        `json:"notes"`
	UpdatedOn string        `json:"updated_on,omitempty"`
	Journal   *JournalField `json:"journal,omitempty"`
}

// SubtaskUpdatePayload is PUT to /issues/{child}.json to attach a parent,
// spec.md §4.9.
type SubtaskUpdatePayload struct {
	ParentIssueID int64 `json:"parent_issue_id"`
}

// WatcherPayload is POSTed to /issues/{id}/watchers.json, spec.md §4.9.
type WatcherPayload struct {
	UserID int64 `json:"user_id"`
}

// IssueDetail is the decoded response of GET /issues/{id}.json?include=....
// Only the fields the attachment-association step (§4.8 step 4) and the
// journal-locate step (§4.9) need are modeled; everything else stays raw.
type IssueDetail struct {
	Issue struct {
		ID          int64                   `json:"id"`
		Attachments []IssueDetailAttachment `json:"attachments"`
		Journals    []IssueDetailJournal    `json:"journals"`
	} `json:"issue"`
}

// IssueDetailAttachment is one entry of IssueDetail.Issue.Attachments.
type IssueDetailAttachment struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// IssueDetailJournal is one entry of IssueDetail.Issue.Journals.
type IssueDetailJournal struct {
	ID        int64  `json:"id"`
	Notes     string `json:"notes"`
	CreatedOn string `json:"created_on"`
}

// envelope wraps the {"id": N} (or similar) shape Redmine returns in its
// 201 create responses; callers decode just the field they need.
type envelope struct {
	Project *struct {
		ID int64 `json:"id"`
	} `json:"project"`
	User *struct {
		ID int64 `json:"id"`
	} `json:"user"`
	Issue *struct {
		ID int64 `json:"id"`
	} `json:"issue"`
	Upload *struct {
		Token string `json:"token"`
	} `json:"upload"`
}

func decodeEnvelope(body []byte) (envelope, error) {
	var e envelope
	if len(body) == 0 {
		return e, nil
	}
	err := json.Unmarshal(body, &e)
	return e, err
}
