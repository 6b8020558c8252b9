package attachments

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

// downloadBufferSize is the fixed-size read spec.md §4.8 step 2 requires
// (>= 8 KiB).
const downloadBufferSize = 32 * 1024

// Pull runs step 2 of the AttachmentPipeline, spec.md §4.8: stream every
// PENDING_DOWNLOAD row's `content` URL to a local file via a bounded worker
// pool, grounded on the teacher-pack's downloadAttachment
// stream-to-temp-file-then-rename pattern.
func (p *Pipeline) Pull(ctx context.Context) (Summary, error) {
	rows, err := p.Store.FetchAttachmentsPendingDownload(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch attachments pending download: %w", err)
	}
	rows = capRows(rows, p.Config.DownloadLimit)

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(p.Config.pullConcurrency())

	var sum Summary
	results := make(chan error, len(rows))
	for _, row := range rows {
		row := row
		grp.Go(func() error {
			results <- p.pullOne(gctx, row)
			return nil
		})
	}
	_ = grp.Wait()
	close(results)

	for err := range results {
		if err != nil {
			sum.Failed++
			continue
		}
		sum.Updated++
	}
	return sum, nil
}

func (p *Pipeline) pullOne(ctx context.Context, row store.AttachmentForDownload) error {
	att, err := decodeAttachmentPayload(row.RawPayload)
	if err != nil {
		_ = p.Store.MarkAttachmentDownloadFailed(ctx, row.MappingID, err.Error())
		return err
	}

	dest := p.localPath(row.JiraAttachmentID, att.Filename)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		note := fmt.Sprintf("create download dir: %v", err)
		_ = p.Store.MarkAttachmentDownloadFailed(ctx, row.MappingID, note)
		return err
	}

	if err := p.streamToFile(ctx, att.Content, dest); err != nil {
		_ = os.Remove(dest)
		_ = p.Store.MarkAttachmentDownloadFailed(ctx, row.MappingID, truncateNote(err.Error()))
		return err
	}

	if err := p.Store.MarkAttachmentDownloaded(ctx, row.MappingID, dest); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) streamToFile(ctx context.Context, contentURL, dest string) error {
	resp, err := p.Jira.AuthenticatedGet(ctx, contentURL)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download: HTTP %d: %s", resp.StatusCode, string(body))
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	buf := make([]byte, downloadBufferSize)
	_, copyErr := io.CopyBuffer(f, resp.Body, buf)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("stream content: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func truncateNote(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
