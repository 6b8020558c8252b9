package store

import (
	"context"
	"testing"
)

func TestOperatorMappingTablesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetTrackerMapping(ctx, "10001", 3); err != nil {
		t.Fatalf("SetTrackerMapping: %v", err)
	}
	if err := s.SetTrackerMapping(ctx, "10002", 4); err != nil {
		t.Fatalf("SetTrackerMapping: %v", err)
	}
	// upsert overwrites, not duplicates
	if err := s.SetTrackerMapping(ctx, "10001", 5); err != nil {
		t.Fatalf("SetTrackerMapping overwrite: %v", err)
	}

	trackers, err := s.GetTrackerMap(ctx)
	if err != nil {
		t.Fatalf("GetTrackerMap: %v", err)
	}
	if trackers["10001"] != 5 || trackers["10002"] != 4 || len(trackers) != 2 {
		t.Fatalf("unexpected tracker map: %+v", trackers)
	}

	if err := s.SetStatusMapping(ctx, "1", 1); err != nil {
		t.Fatalf("SetStatusMapping: %v", err)
	}
	statuses, err := s.GetStatusMap(ctx)
	if err != nil || statuses["1"] != 1 {
		t.Fatalf("unexpected status map: %+v err=%v", statuses, err)
	}

	if err := s.SetPriorityMapping(ctx, "3", 2); err != nil {
		t.Fatalf("SetPriorityMapping: %v", err)
	}
	priorities, err := s.GetPriorityMap(ctx)
	if err != nil || priorities["3"] != 2 {
		t.Fatalf("unexpected priority map: %+v err=%v", priorities, err)
	}
}
