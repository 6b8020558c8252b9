// Package attachments implements the AttachmentPipeline, spec.md §4.8: a
// four-step state machine (sync/pull/push/associate) that downloads each
// Jira attachment once and uploads it to either Redmine or SharePoint
// exactly once. Step 4 (associate) already lives in internal/redmine's
// Pusher, since it only runs as a side effect of an issue or journal push;
// this package owns steps 1-3.
package attachments

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jcatrysse/jira2redmine/internal/jiraclient"
	"github.com/jcatrysse/jira2redmine/internal/redmine"
	"github.com/jcatrysse/jira2redmine/internal/sharepoint"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

// Config holds the operator-configured knobs spec.md §4.8/§5 names.
type Config struct {
	// TmpDir is the root pull writes under; files land at
	// {TmpDir}/attachments/jira/{id}__{sanitized_name}.
	TmpDir string
	// PullConcurrency bounds the download worker pool (spec.md §5).
	PullConcurrency int
	// OffloadThresholdBytes: attachments at or above this size go to
	// SharePoint instead of Redmine, when SharePoint is configured.
	OffloadThresholdBytes int64
	// SharePoint is nil when the site isn't configured; every PENDING_UPLOAD
	// row then goes to Redmine regardless of size.
	SharePoint *sharepoint.Config
	// DownloadLimit/UploadLimit cap how many rows one Pull/Push call
	// processes, for the CLI's --download-limit/--upload-limit; 0 means
	// unlimited.
	DownloadLimit int
	UploadLimit   int
}

func (c Config) pullConcurrency() int {
	if c.PullConcurrency < 1 {
		return 1
	}
	return c.PullConcurrency
}

// capRows truncates rows to limit when limit is positive.
func capRows[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// Pipeline runs the sync/pull/push steps against one mapping database.
type Pipeline struct {
	Store   *store.Store
	Jira    *jiraclient.Client
	Redmine *redmine.Client
	Config  Config
	Graph   *sharepoint.Client // nil when Config.SharePoint is nil
}

// New builds a Pipeline, constructing a sharepoint.Client only when the
// site is configured.
func New(st *store.Store, jira *jiraclient.Client, rm *redmine.Client, cfg Config) *Pipeline {
	p := &Pipeline{Store: st, Jira: jira, Redmine: rm, Config: cfg}
	if cfg.SharePoint != nil {
		p.Graph = sharepoint.New(*cfg.SharePoint)
	}
	return p
}

// Summary tallies one pipeline-step run, mirroring internal/reconcile's
// Summary shape.
type Summary struct {
	Updated int
	Skipped int
	Failed  int
}

type jiraAttachmentPayload struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Created  string `json:"created"`
}

func decodeAttachmentPayload(raw json.RawMessage) (jiraAttachmentPayload, error) {
	var p jiraAttachmentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode attachment payload: %w", err)
	}
	return p, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename strips characters that don't survive a filesystem path
// or a Redmine attachment filename unescaped.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "attachment"
	}
	return name
}

// UniqueFilename is the `{id}__{sanitized_name}` scheme spec.md §4.8 step 2
// names; it doubles as the local file's base name, the filename
// Pusher.associateAttachments matches against once uploaded, and the token
// ContentRewriter embeds in rewritten attachment: references.
func UniqueFilename(jiraAttachmentID, filename string) string {
	return jiraAttachmentID + "__" + sanitizeFilename(filename)
}

func (p *Pipeline) localPath(jiraAttachmentID, filename string) string {
	return filepath.Join(p.Config.TmpDir, "attachments", "jira", UniqueFilename(jiraAttachmentID, filename))
}
