package store

import (
	"context"
	"testing"
)

func TestFamilyProgressRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetFamilyProgress(ctx, "projects"); err != nil || ok {
		t.Fatalf("expected no progress yet, got ok=%v err=%v", ok, err)
	}

	if err := s.MarkFamilyPhaseComplete(ctx, "projects", "transform"); err != nil {
		t.Fatalf("MarkFamilyPhaseComplete: %v", err)
	}
	progress, ok, err := s.GetFamilyProgress(ctx, "projects")
	if err != nil || !ok {
		t.Fatalf("expected progress, got ok=%v err=%v", ok, err)
	}
	if progress.LastCompletedPhase != "transform" {
		t.Fatalf("expected transform, got %q", progress.LastCompletedPhase)
	}

	// upsert overwrites, not duplicates
	if err := s.MarkFamilyPhaseComplete(ctx, "projects", "push"); err != nil {
		t.Fatalf("MarkFamilyPhaseComplete overwrite: %v", err)
	}
	progress, ok, err = s.GetFamilyProgress(ctx, "projects")
	if err != nil || !ok || progress.LastCompletedPhase != "push" {
		t.Fatalf("expected push, got %+v ok=%v err=%v", progress, ok, err)
	}
}
