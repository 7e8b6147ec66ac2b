// Package archive implements §4.G: the archive writer. archive_inbox claims
// files from the inbox one at a time via rename (the cross-process mutual
// exclusion primitive - the winner of a rename owns the file) and dispatches
// each to write_copy for every (archive, copy_id) its data stream requires.
// Grounded directly on the original service's disk_archiver.rs
// (archive_file_pairs_to_archives / archive_file_pair_to_disk) and
// adhoc/utils.rs's next_file rename-claim idiom.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package archive

import (
	"context"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/jade-archive/datamove/internal/allocator"
	"github.com/jade-archive/datamove/internal/closer"
	"github.com/jade-archive/datamove/internal/cos"
	"github.com/jade-archive/datamove/internal/fsprobe"
	"github.com/jade-archive/datamove/internal/index"
	"github.com/jade-archive/datamove/internal/jaderr"
	"github.com/jade-archive/datamove/internal/model"
	"github.com/jade-archive/datamove/internal/nlog"
)

// MaxTiltCount bounds write_copy's allocate/revalidate/space-check loop so a
// run of disks that are all simultaneously full cannot spin forever (§4.G
// step 2).
const MaxTiltCount = 10

// Writer drains the inbox, placing each claimed file onto every destination
// disk its data stream requires.
type Writer struct {
	Store     index.Store
	Allocator *allocator.Allocator
	Closer    *closer.Closer

	Archives    []model.DiskArchive
	DataStreams []model.DataStream

	HostID   int64
	Hostname string

	InboxDir      string
	WorkDir       string
	OutboxDir     string
	QuarantineDir string

	ArchiveHeadroom int64
	WorkLimitBreak  int
}

func (w *Writer) archiveByShortName(name string) (model.DiskArchive, bool) {
	for _, a := range w.Archives {
		if a.ShortName == name {
			return a, true
		}
	}
	return model.DiskArchive{}, false
}

func (w *Writer) streamByUUID(uuid string) (*model.DataStream, bool) {
	for i := range w.DataStreams {
		if w.DataStreams[i].UUID == uuid {
			return &w.DataStreams[i], true
		}
	}
	return nil, false
}

// ArchiveInbox is the loop driver (§4.G steps 1-6): claim, parse, resolve,
// dispatch, move to outbox, repeat until the inbox is drained, the shutdown
// context is cancelled, or WorkLimitBreak successful pairs have been
// processed (whichever comes first, so the orchestrator can interleave cache
// purge and semaphore scans between bursts).
func (w *Writer) ArchiveInbox(ctx context.Context) error {
	processed := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.WorkLimitBreak > 0 && processed >= w.WorkLimitBreak {
			return nil
		}

		path, err := w.claimNext()
		if err != nil {
			return &jaderr.ErrIO{Op: "next_file", Err: err}
		}
		if path == "" {
			return nil
		}

		if err := w.archiveOne(ctx, path); err != nil {
			if jaderr.IsFatal(err) {
				return err
			}
			nlog.Errorf("archive: error while archiving %s: %v", path, err)
			w.quarantine(path)
			continue
		}
		// archiveOne quarantines rejected files itself; only a file that
		// reached the outbox counts as a successful pair.
		if fsprobe.Exists(filepath.Join(w.OutboxDir, filepath.Base(path))) {
			processed++
		}
	}
}

// archiveOne resolves and dispatches a single claimed file. Fatal errors,
// and a non-fatal failure to move the archived file to the outbox, are
// returned to the caller; every other failure mode quarantines path itself
// and returns nil, per §4.G steps 2-4.
func (w *Writer) archiveOne(ctx context.Context, path string) error {
	name := filepath.Base(path)
	uuid, ok := cos.ParseUkey(name)
	if !ok {
		nlog.Errorf("archive: unable to determine uuid for %s", path)
		w.quarantine(path)
		return nil
	}

	fp, err := w.Store.FindFilePairByUUID(ctx, uuid)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "find_file_pair_by_uuid", Err: err}
	}
	if fp == nil {
		nlog.Errorf("archive: no file pair row for uuid %s (%s)", uuid, path)
		w.quarantine(path)
		return nil
	}

	if fp.DataStreamUUID == "" {
		nlog.Errorf("archive: file pair %s has no data stream uuid", uuid)
		w.quarantine(path)
		return nil
	}
	stream, ok := w.streamByUUID(fp.DataStreamUUID)
	if !ok {
		nlog.Errorf("archive: no data stream %s for file pair %s", fp.DataStreamUUID, uuid)
		w.quarantine(path)
		return nil
	}

	for _, name := range stream.Archives {
		archive, ok := w.archiveByShortName(name)
		if !ok {
			nlog.Warningf("archive: data stream %s names unknown archive %q, skipping", stream.UUID, name)
			continue
		}
		for copyID := 1; copyID <= archive.NumCopies; copyID++ {
			if err := w.writeCopy(ctx, path, fp, stream, archive, copyID); err != nil {
				if jaderr.IsFatal(err) {
					return err
				}
				nlog.Errorf("archive: error writing %s to %s copy %d: %v", uuid, archive.ShortName, copyID, err)
				w.quarantine(path)
				return nil
			}
		}
	}

	if err := w.moveToOutbox(path); err != nil {
		return &jaderr.ErrIO{Op: "move_to_outbox", Err: err}
	}
	nlog.Infof("archive: archived %s", path)
	return nil
}

// writeCopy is the per-copy pipeline (§4.G steps 1-7).
func (w *Writer) writeCopy(ctx context.Context, srcPath string, fp *model.FilePair, stream *model.DataStream, archive model.DiskArchive, copyID int) error {
	onDisk, err := w.Store.FindFilePairOnDisk(ctx, w.HostID, archive.UUID, copyID, fp.ID)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "find_file_pair_on_disk", Err: err}
	}
	if onDisk {
		return nil
	}

	disk, err := w.resolveDestinationDisk(ctx, fp, archive, copyID)
	if err != nil {
		return err
	}
	if disk.Bad {
		return jaderr.NewCritical("disk %d (%s) is marked bad, cannot archive to it", disk.ID, disk.UUID)
	}
	if disk.OnHold {
		return jaderr.NewCritical("disk %d (%s) is marked on-hold, cannot archive to it", disk.ID, disk.UUID)
	}

	if fp.ArchiveFile == "" {
		return jaderr.NewCritical("file pair %s has no archive filename", fp.UUID)
	}
	warehousePath := stream.WarehousePath(fp.OriginModTime)
	destDir := filepath.Join(disk.DevicePath, warehousePath)
	dest := filepath.Join(destDir, fp.ArchiveFile)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &jaderr.ErrIO{Op: "mkdir dest dir", Err: err}
	}
	if err := copyFsyncVerify(srcPath, dest, fp.ArchiveChecksum); err != nil {
		return err
	}

	sidecar := model.NewArchivalDiskFile(fp, warehousePath, w.Hostname, time.Now().UnixMilli())
	raw, err := jsoniter.Marshal(sidecar)
	if err != nil {
		return &jaderr.ErrJSON{Op: "marshal sidecar", Err: err}
	}
	sidecarPath := cos.SidecarPath(disk.DevicePath, fp.UUID)
	if err := os.MkdirAll(filepath.Dir(sidecarPath), 0o755); err != nil {
		return &jaderr.ErrIO{Op: "mkdir sidecar dir", Err: err}
	}
	if err := writeFileAndFsync(sidecarPath, raw); err != nil {
		return &jaderr.ErrIO{Op: "write sidecar", Err: err}
	}

	if err := w.Store.AddFilePair(ctx, disk.ID, fp.ID); err != nil {
		return &jaderr.ErrDatabase{Op: "add_file_pair", Err: err}
	}
	return nil
}

// resolveDestinationDisk runs the bounded allocate/revalidate/space-check
// loop (§4.G step 2). Physical re-validation failure is always fatal: the
// database and filesystem have disagreed, and that requires a human.
func (w *Writer) resolveDestinationDisk(ctx context.Context, fp *model.FilePair, archive model.DiskArchive, copyID int) (*model.Disk, error) {
	for attempt := 0; attempt < MaxTiltCount; attempt++ {
		disk, err := w.Allocator.FindOrCreate(ctx, archive, copyID)
		if err != nil {
			return nil, err
		}
		if !isOkayToArchiveTo(disk) {
			return nil, jaderr.NewCritical("disk %s (%s) failed physical re-validation: database and filesystem disagree", disk.DevicePath, disk.UUID)
		}

		available, err := fsprobe.FreeSpace(disk.DevicePath)
		if err != nil {
			return nil, &jaderr.ErrIO{Op: "free_space", Err: err}
		}
		available -= w.ArchiveHeadroom
		if available < fp.ArchiveSize {
			nlog.Infof("archive: %s (%d bytes free) does not have sufficient space for %s (%d bytes)", disk.DevicePath, available, fp.ArchiveFile, fp.ArchiveSize)
			if w.Closer == nil {
				return nil, jaderr.NewCritical("disk %s is full and no closer is configured to close it", disk.DevicePath)
			}
			if err := w.Closer.CloseByPath(ctx, disk.DevicePath); err != nil {
				return nil, err
			}
			continue
		}
		return disk, nil
	}
	return nil, jaderr.NewCritical("unable to find or allocate a destination disk for archive %s copy %d after %d attempts", archive.ShortName, copyID, MaxTiltCount)
}

// isOkayToArchiveTo verifies a disk the database told us is open is also
// physically present and correctly labeled (§4.G step 2.b).
func isOkayToArchiveTo(disk *model.Disk) bool {
	if !fsprobe.Exists(disk.DevicePath) {
		return false
	}
	if !fsprobe.IsWritableDir(disk.DevicePath) {
		return false
	}
	isMount, err := fsprobe.IsMountPoint(disk.DevicePath)
	if err != nil || !isMount {
		return false
	}
	labels, err := fsprobe.ReadLabels(disk.DevicePath)
	if err != nil || len(labels) != 1 {
		return false
	}
	return labels[0] == disk.UUID
}

// claimNext performs the rename-based inbox claim (§4.G step 1): the first
// file whose rename succeeds is ours; ENOENT means a sibling worker beat us
// to it, so we move on. Returns "" when the inbox is empty.
func (w *Writer) claimNext() (string, error) {
	entries, err := os.ReadDir(w.InboxDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(w.InboxDir, entry.Name())
		dest := filepath.Join(w.WorkDir, entry.Name())
		if err := os.Rename(src, dest); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		nlog.Infof("archive: claimed %s -> %s", src, dest)
		return dest, nil
	}
	return "", nil
}

func (w *Writer) quarantine(path string) {
	dest := filepath.Join(w.QuarantineDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		nlog.Errorf("archive: failed to quarantine %s: %v", path, err)
	}
}

func (w *Writer) moveToOutbox(path string) error {
	return os.Rename(path, filepath.Join(w.OutboxDir, filepath.Base(path)))
}

// ReclaimAbandonedWork moves every file still sitting in WorkDir back to
// InboxDir. The rename-based claim leaves files stranded in WorkDir on
// crash; the orchestrator calls this at the start of every work cycle to
// recover them (§4.I).
func (w *Writer) ReclaimAbandonedWork() error {
	entries, err := os.ReadDir(w.WorkDir)
	if err != nil {
		return &jaderr.ErrIO{Op: "read work dir", Err: err}
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(w.WorkDir, entry.Name())
		dest := filepath.Join(w.InboxDir, entry.Name())
		if err := os.Rename(src, dest); err != nil {
			return &jaderr.ErrIO{Op: "reclaim rename", Err: err}
		}
		nlog.Infof("archive: reclaimed abandoned work file %s -> %s", src, dest)
	}
	return nil
}

// copyFsyncVerify copies src to dest byte-for-byte, fsyncs it, then
// re-reads dest to verify its SHA-512 against expectedChecksum - a fresh
// read rather than trusting the hash computed during the copy, since the
// point is to catch corruption introduced by the write itself (§4.G step 5).
func copyFsyncVerify(srcPath, destPath, expectedChecksum string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return &jaderr.ErrIO{Op: "open source", Err: err}
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &jaderr.ErrIO{Op: "create dest", Err: err}
	}
	defer dst.Close()

	if _, _, err := cos.CopyAndChecksum(dst, src); err != nil {
		return &jaderr.ErrIO{Op: "copy", Err: err}
	}
	if err := cos.FlushToDisk(dst); err != nil {
		return &jaderr.ErrIO{Op: "fsync dest", Err: err}
	}

	digest, err := cos.ChecksumFile(destPath)
	if err != nil {
		return &jaderr.ErrIO{Op: "checksum dest", Err: err}
	}
	if digest != expectedChecksum {
		return &jaderr.ErrChecksum{Expected: expectedChecksum, Actual: digest, Path: destPath}
	}
	return nil
}

func writeFileAndFsync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return cos.FlushToDisk(f)
}
