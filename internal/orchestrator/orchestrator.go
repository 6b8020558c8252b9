// Package orchestrator implements the PhaseOrchestrator, spec.md §4.10:
// per-entity-family phase sequencing plus the cross-invocation family
// ordering spec.md requires (projects -> users -> issues -> attachments ->
// journals -> watchers -> subtasks). Grounded on the teacher's cmd/bd/main.go
// command dispatch, generalized from "one command, one action" into "one
// family, an ordered list of phases".
package orchestrator

import (
	"context"
	"fmt"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

// Family is one of the seven entity families spec.md §4.10 names.
type Family string

const (
	FamilyProjects    Family = "projects"
	FamilyUsers       Family = "users"
	FamilyIssues      Family = "issues"
	FamilyAttachments Family = "attachments"
	FamilyJournals    Family = "journals"
	FamilyWatchers    Family = "watchers"
	FamilySubtasks    Family = "subtasks"
)

// FamilyOrder is the sequence spec.md §4.10 requires entities to migrate in
// across invocations.
var FamilyOrder = []Family{
	FamilyProjects, FamilyUsers, FamilyIssues, FamilyAttachments,
	FamilyJournals, FamilyWatchers, FamilySubtasks,
}

// dependencies maps each family to the families that must have completed a
// transform pass first. Attachments/journals/watchers/subtasks all
// reference jira_issue_id and so depend on issues; issues depends on both
// projects and users for its foreign-key proposals to resolve.
var dependencies = map[Family][]Family{
	FamilyIssues:      {FamilyProjects, FamilyUsers},
	FamilyAttachments: {FamilyIssues},
	FamilyJournals:    {FamilyIssues},
	FamilyWatchers:    {FamilyIssues},
	FamilySubtasks:    {FamilyIssues},
}

// Phase is one step of a family's migration, spec.md §4.10.
type Phase string

const (
	PhaseJira      Phase = "jira"
	PhaseRedmine   Phase = "redmine"
	PhaseTransform Phase = "transform"
	PhasePull      Phase = "pull" // attachments only
	PhasePush      Phase = "push"
)

// phaseOrder gives each phase a position so CheckOrder can tell whether a
// family has reached at least transform, even though migration_progress
// only remembers the single most-recently-completed phase.
var phaseOrder = map[Phase]int{
	PhaseJira:      0,
	PhaseRedmine:   1,
	PhaseTransform: 2,
	PhasePull:      3,
	PhasePush:      4,
}

// Phases returns the phase list a family supports, in execution order.
// Every family supports jira/redmine/transform/push; attachments alone
// also has pull, spec.md §4.10.
func Phases(f Family) []Phase {
	phases := []Phase{PhaseJira, PhaseRedmine, PhaseTransform}
	if f == FamilyAttachments {
		phases = append(phases, PhasePull)
	}
	return append(phases, PhasePush)
}

// PhaseFunc executes one (family, phase) step. dryRun is true when the
// caller should compute and log what it would do instead of performing
// network/filesystem writes — spec.md §4.10's "`--dry-run` runs the full
// proposal path but emits previews instead of calls" applies to push and
// pull; jira/redmine/transform have no external side effects to preview
// and normally ignore dryRun.
type PhaseFunc func(ctx context.Context, dryRun bool) (string, error)

// Orchestrator sequences phase execution for one family per invocation and
// persists cross-invocation progress via Store.
type Orchestrator struct {
	Store    *store.Store
	registry map[Family]map[Phase]PhaseFunc
}

// New constructs an Orchestrator with an empty handler registry; callers
// wire in PhaseFunc implementations via Register before calling Run.
func New(st *store.Store) *Orchestrator {
	return &Orchestrator{Store: st, registry: map[Family]map[Phase]PhaseFunc{}}
}

// Register wires fn as the handler for one (family, phase) step.
func (o *Orchestrator) Register(f Family, p Phase, fn PhaseFunc) {
	if o.registry[f] == nil {
		o.registry[f] = map[Phase]PhaseFunc{}
	}
	o.registry[f][p] = fn
}

// CheckOrder enforces spec.md §4.10's cross-invocation ordering: it is
// fatal to run a family before every family it depends on has completed at
// least one transform pass.
func (o *Orchestrator) CheckOrder(ctx context.Context, f Family) error {
	for _, dep := range dependencies[f] {
		progress, ok, err := o.Store.GetFamilyProgress(ctx, string(dep))
		if err != nil {
			return fmt.Errorf("orchestrator: check order for %s: %w", f, err)
		}
		if !ok || phaseOrder[Phase(progress.LastCompletedPhase)] < phaseOrder[PhaseTransform] {
			return fmt.Errorf("orchestrator: %s requires %s to have completed a transform pass first", f, dep)
		}
	}
	return nil
}

// RunOptions configures one Run call, mapping directly onto the CLI flags
// spec.md §4.10 names.
type RunOptions struct {
	Family      Family
	Phases      []Phase // nil/empty means every phase this family supports
	Skip        []Phase
	ConfirmPush bool
	ConfirmPull bool
	DryRun      bool
}

// steps resolves the final ordered phase list: the family's supported
// phases, intersected with Phases (if given) and minus Skip.
func steps(f Family, requested, skip []Phase) []Phase {
	base := Phases(f)
	if len(requested) > 0 {
		want := toSet(requested)
		var filtered []Phase
		for _, p := range base {
			if want[p] {
				filtered = append(filtered, p)
			}
		}
		base = filtered
	}
	if len(skip) == 0 {
		return base
	}
	drop := toSet(skip)
	var out []Phase
	for _, p := range base {
		if !drop[p] {
			out = append(out, p)
		}
	}
	return out
}

func toSet(phases []Phase) map[Phase]bool {
	set := make(map[Phase]bool, len(phases))
	for _, p := range phases {
		set[p] = true
	}
	return set
}

// PhaseResult records the outcome of one executed phase.
type PhaseResult struct {
	Phase   Phase
	Summary string
}

// Run executes opts.Family's resolved phase list in order, refusing to
// start if CheckOrder fails, and gating push/pull behind their confirm
// flags unless DryRun is set. Transform always records its completion;
// push only records completion when it actually ran (not a dry run).
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) ([]PhaseResult, error) {
	if err := o.CheckOrder(ctx, opts.Family); err != nil {
		return nil, err
	}

	var results []PhaseResult
	for _, phase := range steps(opts.Family, opts.Phases, opts.Skip) {
		if !opts.DryRun {
			if phase == PhasePush && !opts.ConfirmPush {
				return results, fmt.Errorf("orchestrator: refusing to run %s/push without --confirm-push", opts.Family)
			}
			if phase == PhasePull && !opts.ConfirmPull {
				return results, fmt.Errorf("orchestrator: refusing to run %s/pull without --confirm-pull", opts.Family)
			}
		}

		fn, ok := o.registry[opts.Family][phase]
		if !ok {
			return results, fmt.Errorf("orchestrator: no handler registered for %s/%s", opts.Family, phase)
		}

		summary, err := fn(ctx, opts.DryRun)
		recordPhaseOutcome(ctx, opts.Family, phase, opts.DryRun, err)
		if err != nil {
			return results, fmt.Errorf("orchestrator: %s/%s: %w", opts.Family, phase, err)
		}
		results = append(results, PhaseResult{Phase: phase, Summary: summary})

		switch {
		case phase == PhaseTransform:
			if err := o.Store.MarkFamilyPhaseComplete(ctx, string(opts.Family), string(phase)); err != nil {
				return results, fmt.Errorf("orchestrator: record progress for %s/%s: %w", opts.Family, phase, err)
			}
		case phase == PhasePush && !opts.DryRun:
			if err := o.Store.MarkFamilyPhaseComplete(ctx, string(opts.Family), string(phase)); err != nil {
				return results, fmt.Errorf("orchestrator: record progress for %s/%s: %w", opts.Family, phase, err)
			}
		}
	}
	return results, nil
}
