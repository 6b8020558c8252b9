package main

import (
	"testing"

	"github.com/jcatrysse/jira2redmine/internal/orchestrator"
)

func TestPhasesIncludeDefaultsToFamilyPhaseList(t *testing.T) {
	if !phasesInclude(orchestrator.FamilyProjects, nil, nil, orchestrator.PhasePush) {
		t.Fatal("expected push to be included by default for projects")
	}
	if phasesInclude(orchestrator.FamilyProjects, nil, nil, orchestrator.PhasePull) {
		t.Fatal("projects has no pull phase")
	}
}

func TestPhasesIncludeHonorsRequestedAndSkip(t *testing.T) {
	if phasesInclude(orchestrator.FamilyAttachments, []string{"jira", "push"}, nil, orchestrator.PhasePull) {
		t.Fatal("pull wasn't requested, should be excluded")
	}
	if phasesInclude(orchestrator.FamilyAttachments, nil, []string{"push"}, orchestrator.PhasePush) {
		t.Fatal("push was skipped, should be excluded")
	}
}

func TestToPhasesTrimsWhitespace(t *testing.T) {
	got := toPhases([]string{" jira", "push "})
	want := []orchestrator.Phase{orchestrator.PhaseJira, orchestrator.PhasePush}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
