package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/orchestrator"
	"github.com/spf13/cobra"
)

// familyFlags holds the per-invocation flags every family subcommand
// shares, spec.md §4.10's "CLI surface (per script)".
type familyFlags struct {
	phases         []string
	skip           []string
	confirmPush    bool
	confirmPull    bool
	dryRun         bool
	useExtendedAPI bool
	downloadLimit  int
	uploadLimit    int
}

func addFamilyFlags(cmd *cobra.Command, f *familyFlags) {
	cmd.Flags().StringSliceVar(&f.phases, "phases", nil, "restrict to these phases (comma-separated: jira,redmine,transform,pull,push)")
	cmd.Flags().StringSliceVar(&f.skip, "skip", nil, "skip these phases (comma-separated)")
	cmd.Flags().BoolVar(&f.confirmPush, "confirm-push", false, "allow the push phase to write to Redmine")
	cmd.Flags().BoolVar(&f.confirmPull, "confirm-pull", false, "allow the pull phase to download from Jira")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "run the full proposal path but preview writes instead of performing them")
	cmd.Flags().BoolVar(&f.useExtendedAPI, "use-extended-api", false, "prefer the Redmine extended_api plugin endpoints where available")
	cmd.Flags().IntVar(&f.downloadLimit, "download-limit", 0, "cap the number of attachments pulled this run (0 = unlimited)")
	cmd.Flags().IntVar(&f.uploadLimit, "upload-limit", 0, "cap the number of attachments pushed this run (0 = unlimited)")
}

func toPhases(names []string) []orchestrator.Phase {
	out := make([]orchestrator.Phase, 0, len(names))
	for _, n := range names {
		out = append(out, orchestrator.Phase(strings.TrimSpace(n)))
	}
	return out
}

// runFamily executes family's resolved phase list, printing a styled
// header and summary line per phase, per spec.md §4.10's user-visible
// failure behaviour.
func runFamily(ctx context.Context, app *App, family orchestrator.Family, f familyFlags) error {
	if f.useExtendedAPI || app.Config.Redmine.UseExtendedAPI {
		app.Redmine.ProbeExtendedAPI(ctx)
	}
	app.Attachments.Config.DownloadLimit = f.downloadLimit
	app.Attachments.Config.UploadLimit = f.uploadLimit

	if len(f.phases) == 0 {
		f.phases = nil
	}

	if !f.dryRun {
		needsPush := phasesInclude(family, f.phases, f.skip, orchestrator.PhasePush)
		if needsPush {
			ok, err := confirmGate(f.confirmPush, fmt.Sprintf("Push %s to Redmine?", family))
			if err != nil {
				return err
			}
			f.confirmPush = ok
		}
		if family == orchestrator.FamilyAttachments && phasesInclude(family, f.phases, f.skip, orchestrator.PhasePull) {
			ok, err := confirmGate(f.confirmPull, fmt.Sprintf("Pull %s attachments from Jira?", family))
			if err != nil {
				return err
			}
			f.confirmPull = ok
		}
	}

	results, err := app.Orchestrator.Run(ctx, orchestrator.RunOptions{
		Family:      family,
		Phases:      toPhases(f.phases),
		Skip:        toPhases(f.skip),
		ConfirmPush: f.confirmPush,
		ConfirmPull: f.confirmPull,
		DryRun:      f.dryRun,
	})
	for _, r := range results {
		phaseHeader(string(family), string(r.Phase), time.Now())
		phaseSummary(r.Summary, false)
	}
	return err
}

// phasesInclude reports whether phase would actually run given the
// requested/skip filters, so runFamily only asks for a confirmation the
// orchestrator would otherwise gate.
func phasesInclude(family orchestrator.Family, requested, skip []string, phase orchestrator.Phase) bool {
	want := orchestrator.Phases(family)
	if len(requested) > 0 {
		set := map[string]bool{}
		for _, p := range requested {
			set[strings.TrimSpace(p)] = true
		}
		if !set[string(phase)] {
			return false
		}
	} else {
		found := false
		for _, p := range want {
			if p == phase {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, s := range skip {
		if strings.TrimSpace(s) == string(phase) {
			return false
		}
	}
	return true
}
