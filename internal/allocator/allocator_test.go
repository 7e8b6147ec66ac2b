// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package allocator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jade-archive/datamove/internal/fsprobe"
	"github.com/jade-archive/datamove/internal/identity"
	indexmock "github.com/jade-archive/datamove/internal/index/mock"
	"github.com/jade-archive/datamove/internal/jaderr"
	"github.com/jade-archive/datamove/internal/model"
)

func TestFindOrCreateReturnsExistingOpenDisk(t *testing.T) {
	store := indexmock.New()
	ctx := context.Background()

	host, err := store.EnsureHost(ctx, "jade01")
	if err != nil {
		t.Fatalf("EnsureHost: %v", err)
	}
	id, err := store.CreateDisk(ctx, &model.Disk{
		UUID: "disk-1", CopyID: 1, HostID: host.ID, DiskArchiveUUID: "arc-1",
		DateCreated: time.Now(), DateUpdated: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateDisk: %v", err)
	}

	a := &Allocator{Store: store, HostID: host.ID, Hostname: "jade01", MinimumDiskAgeSeconds: 86400}
	disk, err := a.FindOrCreate(ctx, model.DiskArchive{UUID: "arc-1", ShortName: "IceCube"}, 1)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if disk.ID != id {
		t.Errorf("FindOrCreate returned disk %d, want the pre-existing %d", disk.ID, id)
	}
}

func TestFindOrCreateFailsFatallyWithNoCandidatePaths(t *testing.T) {
	store := indexmock.New()
	ctx := context.Background()
	host, _ := store.EnsureHost(ctx, "jade01")

	a := &Allocator{Store: store, HostID: host.ID, Hostname: "jade01", MinimumDiskAgeSeconds: 86400}
	_, err := a.FindOrCreate(ctx, model.DiskArchive{UUID: "arc-1", ShortName: "IceCube", Paths: nil}, 1)
	if err == nil {
		t.Fatal("expected a fatal error with no candidate paths")
	}
	if !jaderr.IsFatal(err) {
		t.Errorf("no candidate paths must be fatal, got non-fatal %T: %v", err, err)
	}
}

// mountedCandidatePath returns a path that survives choosePath's gauntlet
// (exists, writable, a mount point, no label), or skips the test when the
// host offers none. /dev/shm is a world-writable tmpfs on ordinary Linux
// systems, and before the serial-age guard the allocator writes nothing to
// it but the writability canary it removes again.
func mountedCandidatePath(t *testing.T) string {
	t.Helper()
	const path = "/dev/shm"
	if isMount, err := fsprobe.IsMountPoint(path); err != nil || !isMount {
		t.Skipf("no tmpfs mount at %s on this host", path)
	}
	if !fsprobe.IsWritableDir(path) {
		t.Skipf("%s is not writable", path)
	}
	if n, err := fsprobe.CountLabels(path); err != nil || n != 0 {
		t.Skipf("%s already carries a label-shaped file", path)
	}
	return path
}

// fakeLsblk stands in for the real binary, reporting a canned serial for
// mountPath so the resolver succeeds without a real block device.
func fakeLsblk(t *testing.T, mountPath, serial string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "lsblk")
	body := "#!/bin/sh\ncat <<'EOF'\n{\"blockdevices\":[{\"mountpoint\":\"" + mountPath +
		"\",\"serial\":\"" + serial + "\"}]}\nEOF\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

// TestFindOrCreateFailsFatallyOnSerialReuse mirrors the serial-reuse guard
// scenario: the candidate disk's serial was last claimed one hour ago with a
// one-day minimum age, so allocation must fail fatally with nothing written.
func TestFindOrCreateFailsFatallyOnSerialReuse(t *testing.T) {
	diskPath := mountedCandidatePath(t)
	store := indexmock.New()
	ctx := context.Background()
	host, err := store.EnsureHost(ctx, "jade01")
	if err != nil {
		t.Fatalf("EnsureHost: %v", err)
	}

	// the serial's previous life: a disk closed an hour ago
	const serial = "WD-REUSED0001"
	if _, err := store.CreateDisk(ctx, &model.Disk{
		UUID: "00000000-0000-0000-0000-000000000001", SerialNumber: serial,
		Closed: true, CopyID: 1, HostID: host.ID, DiskArchiveUUID: "arc-1",
		DateCreated: time.Now().Add(-time.Hour), DateUpdated: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("CreateDisk: %v", err)
	}

	a := &Allocator{
		Store:                 store,
		Identity:              &identity.Resolver{LsblkPath: fakeLsblk(t, diskPath, serial)},
		HostID:                host.ID,
		Hostname:              "jade01",
		MinimumDiskAgeSeconds: 86400,
	}
	_, err = a.FindOrCreate(ctx, model.DiskArchive{UUID: "arc-1", ShortName: "IceCube", Paths: []string{diskPath}}, 1)
	if err == nil {
		t.Fatal("expected a fatal error for a serial reused within minimum_disk_age_seconds")
	}
	if !jaderr.IsFatal(err) {
		t.Errorf("serial reuse must be fatal, got non-fatal %T: %v", err, err)
	}

	// the guard fires before the label touch: nothing may be written
	if n, _ := fsprobe.CountLabels(diskPath); n != 0 {
		t.Errorf("expected no label written to %s, found %d", diskPath, n)
	}
}

func TestFormatLabel(t *testing.T) {
	got := formatLabel("IceCube", 2, 2024, 62)
	want := "IceCube_2_2024_0062"
	if got != want {
		t.Errorf("formatLabel() = %q, want %q", got, want)
	}
}

func TestChoosePathEmpty(t *testing.T) {
	a := &Allocator{}
	if _, ok := a.choosePath(nil); ok {
		t.Error("choosePath(nil) should never succeed")
	}
}
