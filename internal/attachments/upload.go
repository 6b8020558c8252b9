package attachments

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

// Push runs step 3 of the AttachmentPipeline, spec.md §4.8: every
// PENDING_UPLOAD row goes to SharePoint when it's large enough and
// SharePoint is configured, otherwise straight to Redmine's raw upload
// endpoint. Invariant: an offloaded attachment is never also uploaded to
// Redmine.
func (p *Pipeline) Push(ctx context.Context) (Summary, error) {
	rows, err := p.Store.FetchAttachmentsPendingUpload(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch attachments pending upload: %w", err)
	}
	rows = capRows(rows, p.Config.UploadLimit)

	var sum Summary
	for _, row := range rows {
		if err := p.pushOne(ctx, row); err != nil {
			sum.Failed++
			continue
		}
		sum.Updated++
	}
	return sum, nil
}

func (p *Pipeline) pushOne(ctx context.Context, row store.AttachmentForUpload) error {
	att, err := decodeAttachmentPayload(row.RawPayload)
	if err != nil {
		_ = p.Store.MarkAttachmentUploadFailed(ctx, row.MappingID, err.Error())
		return err
	}

	size := row.JiraFilesize
	if size == 0 {
		if info, statErr := os.Stat(row.LocalFilepath); statErr == nil {
			size = info.Size()
		}
	}

	filename := UniqueFilename(row.JiraAttachmentID, att.Filename)

	if p.Graph != nil && size >= p.Config.OffloadThresholdBytes {
		webURL, err := p.Graph.Upload(ctx, row.LocalFilepath, filename, size)
		if err != nil {
			_ = p.Store.MarkAttachmentUploadFailed(ctx, row.MappingID, truncateNote(err.Error()))
			return err
		}
		return p.Store.MarkAttachmentUploadedToSharePoint(ctx, row.MappingID, webURL)
	}

	token, err := p.Redmine.UploadFile(ctx, row.LocalFilepath, filename, 0, "")
	if err != nil {
		_ = p.Store.MarkAttachmentUploadFailed(ctx, row.MappingID, truncateNote(err.Error()))
		return err
	}
	return p.Store.MarkAttachmentUploadedToRedmine(ctx, row.MappingID, token, tokenAttachmentID(token))
}

// tokenAttachmentID derives redmine_attachment_id from the numeric prefix
// of an upload token before its first '.', spec.md §4.8 step 3 — most
// Redmine versions format tokens as "{id}.{random}".
func tokenAttachmentID(token string) sql.NullInt64 {
	prefix, _, found := strings.Cut(token, ".")
	if !found {
		return sql.NullInt64{}
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
