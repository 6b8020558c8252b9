package main

import (
	"context"
	"fmt"

	"github.com/jcatrysse/jira2redmine/internal/attachments"
	"github.com/jcatrysse/jira2redmine/internal/orchestrator"
	"github.com/jcatrysse/jira2redmine/internal/reconcile"
	"github.com/jcatrysse/jira2redmine/internal/redmine"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

// noopPhase handles a (family, phase) combination that has nothing to do —
// e.g. the "redmine" phase for every family except projects/users, which
// are the only two with a RedmineSnapshotter match step (spec.md §4.4).
func noopPhase(reason string) orchestrator.PhaseFunc {
	return func(ctx context.Context, dryRun bool) (string, error) {
		return reason, nil
	}
}

// registerPhases wires every (family, phase) handler this process supports.
// Handlers that write to Redmine/Jira (push, pull) honor dryRun themselves
// by reporting a preview count instead of performing the write, per
// spec.md §4.10's "--dry-run runs the full proposal path but emits
// previews instead of calls".
func (a *App) registerPhases() {
	o := a.Orchestrator

	o.Register(orchestrator.FamilyProjects, orchestrator.PhaseJira, func(ctx context.Context, dryRun bool) (string, error) {
		sum, err := a.Extractor.ExtractProjects(ctx)
		if err != nil {
			return "", err
		}
		if _, err := a.Store.SyncMapping(ctx, store.KindProject); err != nil {
			return "", fmt.Errorf("sync project mapping: %w", err)
		}
		return fmt.Sprintf("staged=%d skipped=%d failed=%d", sum.Staged, sum.Skipped, sum.Failed), nil
	})
	o.Register(orchestrator.FamilyProjects, orchestrator.PhaseRedmine, func(ctx context.Context, dryRun bool) (string, error) {
		n, err := a.Snapshotter.SnapshotProjects(ctx)
		return fmt.Sprintf("snapshotted=%d", n), err
	})
	o.Register(orchestrator.FamilyProjects, orchestrator.PhaseTransform, func(ctx context.Context, dryRun bool) (string, error) {
		sum, err := a.Reconciler.RunProjects(ctx)
		return formatReconcileSummary(sum), err
	})
	o.Register(orchestrator.FamilyProjects, orchestrator.PhasePush, func(ctx context.Context, dryRun bool) (string, error) {
		if dryRun {
			return previewReady(ctx, a.Store, store.KindProject)
		}
		sum, err := a.Pusher.PushProjects(ctx)
		return formatPushSummary(sum), err
	})

	o.Register(orchestrator.FamilyUsers, orchestrator.PhaseJira, func(ctx context.Context, dryRun bool) (string, error) {
		sum, err := a.Extractor.ExtractUsers(ctx)
		if err != nil {
			return "", err
		}
		if _, err := a.Store.SyncMapping(ctx, store.KindUser); err != nil {
			return "", fmt.Errorf("sync user mapping: %w", err)
		}
		return fmt.Sprintf("staged=%d skipped=%d failed=%d", sum.Staged, sum.Skipped, sum.Failed), nil
	})
	o.Register(orchestrator.FamilyUsers, orchestrator.PhaseRedmine, func(ctx context.Context, dryRun bool) (string, error) {
		n, err := a.Snapshotter.SnapshotUsers(ctx)
		return fmt.Sprintf("snapshotted=%d", n), err
	})
	o.Register(orchestrator.FamilyUsers, orchestrator.PhaseTransform, func(ctx context.Context, dryRun bool) (string, error) {
		sum, err := a.Reconciler.RunUsers(ctx)
		return formatReconcileSummary(sum), err
	})
	o.Register(orchestrator.FamilyUsers, orchestrator.PhasePush, func(ctx context.Context, dryRun bool) (string, error) {
		if dryRun {
			return previewReady(ctx, a.Store, store.KindUser)
		}
		sum, err := a.Pusher.PushUsers(ctx)
		return formatPushSummary(sum), err
	})

	o.Register(orchestrator.FamilyIssues, orchestrator.PhaseJira, func(ctx context.Context, dryRun bool) (string, error) {
		sum, err := a.Extractor.ExtractAllIssues(ctx)
		if err != nil {
			return "", err
		}
		if _, err := a.Store.SyncMapping(ctx, store.KindIssue); err != nil {
			return "", fmt.Errorf("sync issue mapping: %w", err)
		}
		return fmt.Sprintf("staged=%d skipped=%d failed=%d", sum.Staged, sum.Skipped, sum.Failed), nil
	})
	o.Register(orchestrator.FamilyIssues, orchestrator.PhaseRedmine, noopPhase("no redmine-side snapshot for issues"))
	o.Register(orchestrator.FamilyIssues, orchestrator.PhaseTransform, func(ctx context.Context, dryRun bool) (string, error) {
		sum, err := a.Reconciler.RunIssues(ctx)
		return formatReconcileSummary(sum), err
	})
	o.Register(orchestrator.FamilyIssues, orchestrator.PhasePush, func(ctx context.Context, dryRun bool) (string, error) {
		if dryRun {
			return previewReady(ctx, a.Store, store.KindIssue)
		}
		sum, err := a.Pusher.PushIssues(ctx)
		return formatPushSummary(sum), err
	})

	o.Register(orchestrator.FamilyAttachments, orchestrator.PhaseJira, func(ctx context.Context, dryRun bool) (string, error) {
		extracted, err := a.Extractor.ExtractAttachments(ctx)
		if err != nil {
			return "", err
		}
		sync, err := a.Attachments.Sync(ctx)
		if err != nil {
			return "", fmt.Errorf("sync attachment mapping: %w", err)
		}
		return fmt.Sprintf("staged=%d sync-updated=%d sync-failed=%d", extracted.Staged, sync.Updated, sync.Failed), nil
	})
	o.Register(orchestrator.FamilyAttachments, orchestrator.PhaseRedmine, noopPhase("no redmine-side snapshot for attachments"))
	o.Register(orchestrator.FamilyAttachments, orchestrator.PhaseTransform, func(ctx context.Context, dryRun bool) (string, error) {
		sum, err := a.Reconciler.RunAttachments(ctx)
		return formatReconcileSummary(sum), err
	})
	o.Register(orchestrator.FamilyAttachments, orchestrator.PhasePull, func(ctx context.Context, dryRun bool) (string, error) {
		if dryRun {
			rows, err := a.Store.FetchAttachmentsPendingDownload(ctx)
			return fmt.Sprintf("would pull %d attachment(s)", len(rows)), err
		}
		sum, err := a.Attachments.Pull(ctx)
		return formatPipelineSummary(sum), err
	})
	o.Register(orchestrator.FamilyAttachments, orchestrator.PhasePush, func(ctx context.Context, dryRun bool) (string, error) {
		if dryRun {
			rows, err := a.Store.FetchAttachmentsPendingUpload(ctx)
			return fmt.Sprintf("would push %d attachment(s)", len(rows)), err
		}
		sum, err := a.Attachments.Push(ctx)
		return formatPipelineSummary(sum), err
	})

	o.Register(orchestrator.FamilyJournals, orchestrator.PhaseJira, func(ctx context.Context, dryRun bool) (string, error) {
		n, err := a.Store.SyncJournalMapping(ctx)
		return fmt.Sprintf("synced=%d", n), err
	})
	o.Register(orchestrator.FamilyJournals, orchestrator.PhaseRedmine, noopPhase("no redmine-side snapshot for journals"))
	o.Register(orchestrator.FamilyJournals, orchestrator.PhaseTransform, func(ctx context.Context, dryRun bool) (string, error) {
		lookups, err := a.buildLookups(ctx)
		if err != nil {
			return "", err
		}
		sum, err := a.Reconciler.RunJournals(ctx, lookups)
		return formatReconcileSummary(sum), err
	})
	o.Register(orchestrator.FamilyJournals, orchestrator.PhasePush, func(ctx context.Context, dryRun bool) (string, error) {
		if dryRun {
			return previewReady(ctx, a.Store, store.KindJournal)
		}
		sum, err := a.Pusher.PushJournals(ctx)
		return formatPushSummary(sum), err
	})

	o.Register(orchestrator.FamilyWatchers, orchestrator.PhaseJira, func(ctx context.Context, dryRun bool) (string, error) {
		n, err := a.Store.SyncMapping(ctx, store.KindWatcher)
		return fmt.Sprintf("synced=%d", n), err
	})
	o.Register(orchestrator.FamilyWatchers, orchestrator.PhaseRedmine, noopPhase("no redmine-side snapshot for watchers"))
	o.Register(orchestrator.FamilyWatchers, orchestrator.PhaseTransform, func(ctx context.Context, dryRun bool) (string, error) {
		sum, err := a.Reconciler.RunWatchers(ctx)
		return formatReconcileSummary(sum), err
	})
	o.Register(orchestrator.FamilyWatchers, orchestrator.PhasePush, func(ctx context.Context, dryRun bool) (string, error) {
		if dryRun {
			return previewReady(ctx, a.Store, store.KindWatcher)
		}
		sum, err := a.Pusher.PushWatchers(ctx)
		return formatPushSummary(sum), err
	})

	// Subtasks has no staging/mapping entity of its own: it links parent to
	// child directly off migration_mapping_issues once issues have pushed,
	// spec.md §4.9, so only the push phase does anything.
	o.Register(orchestrator.FamilySubtasks, orchestrator.PhaseJira, noopPhase("subtasks have no staging entity of their own"))
	o.Register(orchestrator.FamilySubtasks, orchestrator.PhaseRedmine, noopPhase("subtasks have no staging entity of their own"))
	o.Register(orchestrator.FamilySubtasks, orchestrator.PhaseTransform, noopPhase("subtasks are derived directly from issue parent references"))
	o.Register(orchestrator.FamilySubtasks, orchestrator.PhasePush, func(ctx context.Context, dryRun bool) (string, error) {
		if dryRun {
			rows, err := a.Store.FetchSubtasksForPush(ctx)
			return fmt.Sprintf("would link %d subtask(s)", len(rows)), err
		}
		sum, err := a.Pusher.PushSubtasks(ctx)
		return formatPushSummary(sum), err
	})
}

func previewReady(ctx context.Context, st *store.Store, kind store.EntityKind) (string, error) {
	rows, err := st.FetchReady(ctx, kind)
	return fmt.Sprintf("would push %d row(s)", len(rows)), err
}

func formatReconcileSummary(sum reconcile.Summary) string {
	return fmt.Sprintf("updated=%d skipped=%d overrides=%d", sum.Updated, sum.Skipped, sum.Overrides)
}

func formatPushSummary(sum redmine.Summary) string {
	return fmt.Sprintf("pushed=%d failed=%d", sum.Pushed, sum.Failed)
}

func formatPipelineSummary(sum attachments.Summary) string {
	return fmt.Sprintf("updated=%d skipped=%d failed=%d", sum.Updated, sum.Skipped, sum.Failed)
}
