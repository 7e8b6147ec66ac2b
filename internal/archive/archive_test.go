// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package archive

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jade-archive/datamove/internal/allocator"
	indexmock "github.com/jade-archive/datamove/internal/index/mock"
	"github.com/jade-archive/datamove/internal/jaderr"
	"github.com/jade-archive/datamove/internal/model"
)

const testFPUUID = "33333333-3333-3333-3333-333333333333"

func mkdirs(t *testing.T) (inbox, work, outbox, quarantine string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"inbox", "work", "outbox", "quarantine"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(root, "inbox"), filepath.Join(root, "work"), filepath.Join(root, "outbox"), filepath.Join(root, "quarantine")
}

func baseWriter(t *testing.T) (*Writer, *indexmock.Store, string, string, string, string) {
	t.Helper()
	inbox, work, outbox, quarantine := mkdirs(t)
	store := indexmock.New()
	host, _ := store.EnsureHost(context.Background(), "jade01")
	w := &Writer{
		Store:           store,
		HostID:          host.ID,
		Hostname:        "jade01",
		InboxDir:        inbox,
		WorkDir:         work,
		OutboxDir:       outbox,
		QuarantineDir:   quarantine,
		ArchiveHeadroom: 0,
		Archives: []model.DiskArchive{
			{UUID: "arc-1", ShortName: "Test", NumCopies: 1},
		},
		DataStreams: []model.DataStream{
			{UUID: "ds-1", Archives: []string{"Test"}},
		},
	}
	return w, store, inbox, work, outbox, quarantine
}

// TestArchiveInboxIdempotentShortCircuit exercises the full loop driver
// without touching the physical-disk gauntlet: the file pair is already
// mapped to an open disk for (archive, copy), so write_copy's idempotence
// check at step 1 short-circuits and the file moves straight to the outbox.
func TestArchiveInboxIdempotentShortCircuit(t *testing.T) {
	w, store, inbox, _, outbox, _ := baseWriter(t)
	ctx := context.Background()

	fp := &model.FilePair{UUID: testFPUUID, DataStreamUUID: "ds-1", ArchiveFile: "x.dat", ArchiveSize: 4}
	store.SeedFilePair(fp)

	diskID, err := store.CreateDisk(ctx, &model.Disk{
		UUID: "disk-1", DevicePath: t.TempDir(), CopyID: 1, HostID: w.HostID,
		DiskArchiveUUID: "arc-1", DateCreated: time.Now(), DateUpdated: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddFilePair(ctx, diskID, fp.ID); err != nil {
		t.Fatal(err)
	}

	name := "ukey_" + testFPUUID + "_x.dat"
	if err := os.WriteFile(filepath.Join(inbox, name), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := w.ArchiveInbox(ctx); err != nil {
		t.Fatalf("ArchiveInbox: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outbox, name)); err != nil {
		t.Errorf("expected %s to be moved to outbox: %v", name, err)
	}
}

func TestArchiveInboxQuarantinesMalformedFilename(t *testing.T) {
	w, _, inbox, _, _, quarantine := baseWriter(t)
	name := "not-a-valid-name.dat"
	if err := os.WriteFile(filepath.Join(inbox, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.ArchiveInbox(context.Background()); err != nil {
		t.Fatalf("ArchiveInbox: %v", err)
	}
	if _, err := os.Stat(filepath.Join(quarantine, name)); err != nil {
		t.Errorf("expected malformed file to be quarantined: %v", err)
	}
}

func TestArchiveInboxQuarantinesUnknownFilePair(t *testing.T) {
	w, _, inbox, _, _, quarantine := baseWriter(t)
	name := "ukey_" + testFPUUID + "_x.dat"
	if err := os.WriteFile(filepath.Join(inbox, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.ArchiveInbox(context.Background()); err != nil {
		t.Fatalf("ArchiveInbox: %v", err)
	}
	if _, err := os.Stat(filepath.Join(quarantine, name)); err != nil {
		t.Errorf("expected unresolvable file pair to be quarantined: %v", err)
	}
}

func TestWriteCopyPhysicalRevalidationIsFatal(t *testing.T) {
	w, store, _, _, _, _ := baseWriter(t)
	ctx := context.Background()

	// An open disk whose device path is a plain tempdir: it exists and is
	// writable, but is never registered in /proc/self/mountinfo, so physical
	// re-validation must fail and the resulting error must be fatal.
	devicePath := t.TempDir()
	if _, err := store.CreateDisk(ctx, &model.Disk{
		UUID: "disk-2", DevicePath: devicePath, CopyID: 1, HostID: w.HostID,
		DiskArchiveUUID: "arc-1", DateCreated: time.Now(), DateUpdated: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	w.Allocator = &allocator.Allocator{Store: store, HostID: w.HostID, Hostname: "jade01"}
	fp := &model.FilePair{ID: 99, UUID: testFPUUID, ArchiveFile: "x.dat", ArchiveSize: 4}
	stream := &w.DataStreams[0]
	archive := w.Archives[0]

	err := w.writeCopy(ctx, filepath.Join(t.TempDir(), "ukey_"+testFPUUID+"_x.dat"), fp, stream, archive, 1)
	if err == nil {
		t.Fatal("expected an error from physical re-validation failure")
	}
	if !jaderr.IsFatal(err) {
		t.Errorf("physical re-validation failure must be fatal, got non-fatal %T: %v", err, err)
	}
}

func TestCopyFsyncVerifyDetectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.dat")
	if err := os.WriteFile(src, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "dest.dat")
	if err := copyFsyncVerify(src, dest, "not-the-right-checksum"); err == nil {
		t.Error("expected a checksum mismatch error")
	}
}

func TestCopyFsyncVerifySucceeds(t *testing.T) {
	dir := t.TempDir()
	content := []byte("hello world")
	src := filepath.Join(dir, "src.dat")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha512.Sum512(content)
	expected := hex.EncodeToString(sum[:])

	dest := filepath.Join(dir, "dest.dat")
	if err := copyFsyncVerify(src, dest, expected); err != nil {
		t.Fatalf("copyFsyncVerify: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != string(content) {
		t.Errorf("dest content = %q, %v, want %q", got, err, content)
	}
}

func TestReclaimAbandonedWork(t *testing.T) {
	w, _, inbox, work, _, _ := baseWriter(t)
	if err := os.WriteFile(filepath.Join(work, "stranded.dat"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.ReclaimAbandonedWork(); err != nil {
		t.Fatalf("ReclaimAbandonedWork: %v", err)
	}
	if _, err := os.Stat(filepath.Join(inbox, "stranded.dat")); err != nil {
		t.Errorf("expected stranded.dat back in inbox: %v", err)
	}
}

// TestClaimExclusivity races several writers over one shared inbox: the
// rename-based claim must hand every file to exactly one of them.
func TestClaimExclusivity(t *testing.T) {
	root := t.TempDir()
	inbox := filepath.Join(root, "inbox")
	if err := os.Mkdir(inbox, 0o755); err != nil {
		t.Fatal(err)
	}

	const numFiles, numWorkers = 40, 4
	for i := 0; i < numFiles; i++ {
		name := filepath.Join(inbox, "ukey_"+testFPUUID+"_"+string(rune('a'+i%26))+string(rune('a'+i/26))+".dat")
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	writers := make([]*Writer, numWorkers)
	for i := range writers {
		work := filepath.Join(root, "work-"+string(rune('0'+i)))
		if err := os.Mkdir(work, 0o755); err != nil {
			t.Fatal(err)
		}
		writers[i] = &Writer{InboxDir: inbox, WorkDir: work}
	}

	claims := make(chan string, numFiles+numWorkers)
	var wg sync.WaitGroup
	for _, w := range writers {
		wg.Add(1)
		go func(w *Writer) {
			defer wg.Done()
			for {
				path, err := w.claimNext()
				if err != nil {
					t.Errorf("claimNext: %v", err)
					return
				}
				if path == "" {
					return
				}
				claims <- filepath.Base(path)
			}
		}(w)
	}
	wg.Wait()
	close(claims)

	seen := make(map[string]int)
	for name := range claims {
		seen[name]++
	}
	if len(seen) != numFiles {
		t.Errorf("claimed %d distinct files, want %d", len(seen), numFiles)
	}
	for name, n := range seen {
		if n != 1 {
			t.Errorf("file %s claimed %d times", name, n)
		}
	}
}

func TestClaimNextReturnsEmptyWhenInboxIsEmpty(t *testing.T) {
	w, _, _, _, _, _ := baseWriter(t)
	path, err := w.claimNext()
	if err != nil {
		t.Fatalf("claimNext: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty inbox to yield no claim, got %q", path)
	}
}
