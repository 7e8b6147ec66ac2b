// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package mock

import (
	"context"
	"testing"
	"time"

	"github.com/jade-archive/datamove/internal/model"
)

// The mock stands in for the relational index in every subsystem test, so it
// must honor the same contracts the SQL adapter promises: strictly
// monotonic label sequences, idempotent mapping appends with increasing
// order, and the closed/good/not-held filters on copy counting.

func TestGetNextLabelStartsAtZeroAndIncrements(t *testing.T) {
	s := New()
	ctx := context.Background()
	for want := 0; want < 5; want++ {
		got, err := s.GetNextLabel(ctx, "arc-1", 1, 2025)
		if err != nil {
			t.Fatalf("GetNextLabel: %v", err)
		}
		if got != want {
			t.Fatalf("GetNextLabel call %d = %d, want %d", want+1, got, want)
		}
	}
	// an independent (archive, copy, year) triple has its own sequence
	got, err := s.GetNextLabel(ctx, "arc-1", 2, 2025)
	if err != nil || got != 0 {
		t.Errorf("GetNextLabel for fresh copy = %d, %v, want 0", got, err)
	}
}

func TestAddFilePairIsIdempotentAndOrdersAppends(t *testing.T) {
	s := New()
	ctx := context.Background()
	fpA := &model.FilePair{UUID: "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"}
	fpB := &model.FilePair{UUID: "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"}
	s.SeedFilePair(fpA)
	s.SeedFilePair(fpB)
	diskID, err := s.CreateDisk(ctx, &model.Disk{UUID: "d-1"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ { // second round must be a no-op
		if err := s.AddFilePair(ctx, diskID, fpA.ID); err != nil {
			t.Fatalf("AddFilePair(A): %v", err)
		}
		if err := s.AddFilePair(ctx, diskID, fpB.ID); err != nil {
			t.Fatalf("AddFilePair(B): %v", err)
		}
	}

	uuids, err := s.FindArchivedFilePairUUIDs(ctx, diskID)
	if err != nil {
		t.Fatalf("FindArchivedFilePairUUIDs: %v", err)
	}
	if len(uuids) != 2 || uuids[0] != fpA.UUID || uuids[1] != fpB.UUID {
		t.Errorf("archived uuids = %v, want [%s %s] in insertion order", uuids, fpA.UUID, fpB.UUID)
	}
}

func TestCountFilePairCopiesCountsOnlyClosedGoodDisks(t *testing.T) {
	s := New()
	ctx := context.Background()
	fp := &model.FilePair{UUID: "cccccccc-cccc-cccc-cccc-cccccccccccc"}
	s.SeedFilePair(fp)

	now := time.Now()
	mk := func(d model.Disk) int64 {
		d.DateCreated, d.DateUpdated = now, now
		id, err := s.CreateDisk(ctx, &d)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.AddFilePair(ctx, id, fp.ID); err != nil {
			t.Fatal(err)
		}
		return id
	}
	mk(model.Disk{UUID: "closed-good", Closed: true})
	mk(model.Disk{UUID: "still-open"})
	mk(model.Disk{UUID: "closed-bad", Closed: true, Bad: true})
	mk(model.Disk{UUID: "closed-held", Closed: true, OnHold: true})

	n, err := s.CountFilePairCopies(ctx, fp.ID)
	if err != nil {
		t.Fatalf("CountFilePairCopies: %v", err)
	}
	if n != 1 {
		t.Errorf("CountFilePairCopies = %d, want 1 (only the closed good disk counts)", n)
	}
}

func TestGetRemovableFilesHonorsCopyThresholdAndWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	fp := &model.FilePair{UUID: "dddddddd-dddd-dddd-dddd-dddddddddddd"}
	s.SeedFilePair(fp)

	cacheDate := time.Now()
	recent := cacheDate.Add(-24 * time.Hour)
	ancient := cacheDate.Add(-90 * 24 * time.Hour) // outside the 30-day window

	for i, created := range []time.Time{recent, ancient} {
		id, err := s.CreateDisk(ctx, &model.Disk{
			UUID: "disk-" + string(rune('a'+i)), Closed: true,
			DateCreated: created, DateUpdated: created,
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.AddFilePair(ctx, id, fp.ID); err != nil {
			t.Fatal(err)
		}
	}

	// the ancient disk is excluded, so only one qualifying copy remains
	out, err := s.GetRemovableFiles(ctx, cacheDate, 2)
	if err != nil {
		t.Fatalf("GetRemovableFiles: %v", err)
	}
	if out[fp.UUID] {
		t.Error("pair should not be removable with only one in-window copy")
	}

	out, err = s.GetRemovableFiles(ctx, cacheDate, 1)
	if err != nil {
		t.Fatalf("GetRemovableFiles: %v", err)
	}
	if !out[fp.UUID] {
		t.Error("pair should be removable once the in-window copy meets the threshold")
	}
}
