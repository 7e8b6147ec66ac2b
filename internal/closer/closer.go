// Package closer implements §4.H: closing a disk, whether requested by an
// operator's close.me semaphore or by the writer discovering it is out of
// space. Sidecar repair and label-overwrite-as-manifest follow the original
// service's ensure_file_pair_metadata / save_archival_disk_file idiom.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package closer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/jade-archive/datamove/internal/cos"
	"github.com/jade-archive/datamove/internal/fsprobe"
	"github.com/jade-archive/datamove/internal/index"
	"github.com/jade-archive/datamove/internal/jaderr"
	"github.com/jade-archive/datamove/internal/mailer"
	"github.com/jade-archive/datamove/internal/model"
	"github.com/jade-archive/datamove/internal/nlog"
	"github.com/jade-archive/datamove/internal/statusview"
)

// Closer closes archival disks, repairing any missing sidecar JSON along the
// way and notifying operators with a full fleet snapshot.
type Closer struct {
	Store       index.Store
	Mailer      *mailer.Mailer
	Prober      *statusview.Prober
	Archives    []model.DiskArchive
	DataStreams []model.DataStream
	Hostname    string
}

func (c *Closer) archive(uuid string) model.DiskArchive {
	for _, a := range c.Archives {
		if a.UUID == uuid {
			return a
		}
	}
	return model.DiskArchive{UUID: uuid, Description: "Unknown Archive"}
}

func (c *Closer) stream(uuid string) *model.DataStream {
	for i := range c.DataStreams {
		if c.DataStreams[i].UUID == uuid {
			return &c.DataStreams[i]
		}
	}
	return nil
}

// CloseByPath closes the disk mounted at path, per §4.H steps 1-6.
func (c *Closer) CloseByPath(ctx context.Context, path string) error {
	labels, err := fsprobe.ReadLabels(path)
	if err != nil {
		return &jaderr.ErrIO{Op: "read_labels", Err: err}
	}
	if len(labels) != 1 {
		return jaderr.NewCritical("expected exactly one label at %s, found %d", path, len(labels))
	}
	uuid := labels[0]

	disk, err := c.Store.FindDiskByUUID(ctx, uuid)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "find_disk_by_uuid", Err: err}
	}
	if disk == nil {
		return jaderr.NewCritical("label %s at %s has no matching disk row", uuid, path)
	}

	if err := c.ensureFilePairMetadata(ctx, disk); err != nil {
		return err
	}

	manifest := model.NewArchivalDiskMetadata(disk)
	raw, err := jsoniter.Marshal(manifest)
	if err != nil {
		return &jaderr.ErrJSON{Op: "marshal manifest", Err: err}
	}
	labelPath := filepath.Join(path, uuid)
	if err := writeFileAndFsync(labelPath, raw); err != nil {
		return &jaderr.ErrIO{Op: "overwrite label", Err: err}
	}

	disk.Closed = true
	disk.DateUpdated = time.Now().UTC()
	rows, err := c.Store.SaveDisk(ctx, disk)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "save_disk", Err: err}
	}
	if rows != 1 {
		return jaderr.NewCritical("save_disk affected %d rows for disk %d, expected exactly 1", rows, disk.ID)
	}

	if c.Mailer != nil {
		c.sendDiskFullEmail(ctx, disk)
	}
	return nil
}

// ensureFilePairMetadata regenerates any missing sidecar JSON for every file
// pair mapped to disk, repairing disks archived to by earlier versions or
// interrupted mid-archive (§4.H step 3).
func (c *Closer) ensureFilePairMetadata(ctx context.Context, disk *model.Disk) error {
	uuids, err := c.Store.FindArchivedFilePairUUIDs(ctx, disk.ID)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "find_archived_file_pair_uuids", Err: err}
	}
	for _, uuid := range uuids {
		sidecarPath := cos.SidecarPath(disk.DevicePath, uuid)
		if fsprobe.Exists(sidecarPath) {
			continue
		}
		fp, err := c.Store.FindFilePairByUUID(ctx, uuid)
		if err != nil {
			return &jaderr.ErrDatabase{Op: "find_file_pair_by_uuid", Err: err}
		}
		if fp == nil {
			nlog.Warningf("closer: disk %d maps file pair %s but it no longer exists, skipping sidecar repair", disk.ID, uuid)
			continue
		}
		warehousePath := fp.MetadataFile
		if stream := c.stream(fp.DataStreamUUID); stream != nil {
			warehousePath = stream.WarehousePath(fp.OriginModTime)
		}
		sidecar := model.NewArchivalDiskFile(fp, warehousePath, c.Hostname, fp.DateUpdated.UnixMilli())
		raw, err := jsoniter.Marshal(sidecar)
		if err != nil {
			return &jaderr.ErrJSON{Op: "marshal sidecar", Err: err}
		}
		if err := os.MkdirAll(filepath.Dir(sidecarPath), 0o755); err != nil {
			return &jaderr.ErrIO{Op: "mkdir sidecar dir", Err: err}
		}
		if err := writeFileAndFsync(sidecarPath, raw); err != nil {
			return &jaderr.ErrIO{Op: "write repaired sidecar", Err: err}
		}
		nlog.Infof("closer: repaired missing sidecar for file pair %s on disk %d", uuid, disk.ID)
	}
	return nil
}

func (c *Closer) sendDiskFullEmail(ctx context.Context, disk *model.Disk) {
	archive := c.archive(disk.DiskArchiveUUID)
	numFilePairs, sizeFilePairs := int64(0), int64(0)
	if uuids, err := c.Store.FindArchivedFilePairUUIDs(ctx, disk.ID); err == nil {
		numFilePairs = int64(len(uuids))
		for _, uuid := range uuids {
			if fp, err := c.Store.FindFilePairByUUID(ctx, uuid); err == nil && fp != nil {
				sizeFilePairs += fp.ArchiveSize
			}
		}
	}

	var rate int64
	if seconds := disk.DateUpdated.Sub(disk.DateCreated).Seconds(); seconds >= 1 {
		rate = int64(float64(sizeFilePairs) / seconds)
	}

	freeBytes, _ := fsprobe.FreeSpace(disk.DevicePath)
	totalBytes, _ := fsprobe.TotalSpace(disk.DevicePath)

	capacity := mailer.FleetCapacityUpdate{}
	if c.Prober != nil {
		snap := c.Prober.Snapshot(ctx, false)
		for path, d := range snap.Workers[0].ArchivalDisks {
			switch d.Status {
			case statusview.NotMounted:
				capacity.NotMountedPaths = append(capacity.NotMountedPaths, path)
			case statusview.NotUsable:
				capacity.NotUsablePaths = append(capacity.NotUsablePaths, path)
			case statusview.Available:
				capacity.AvailablePaths = append(capacity.AvailablePaths, path)
			case statusview.InUse:
				capacity.InUsePaths = append(capacity.InUsePaths, path)
			case statusview.Finished:
				capacity.FinishedPaths = append(capacity.FinishedPaths, path)
			}
		}
	}

	err := c.Mailer.SendDiskFull(mailer.CloseDiskContext{
		Hostname:      c.Hostname,
		DiskArchive:   archive,
		Disk:          mailer.NewEmailDisk(disk),
		NumFilePairs:  numFilePairs,
		SizeFilePairs: sizeFilePairs,
		RateBytesSec:  rate,
		FreeBytes:     freeBytes,
		TotalBytes:    totalBytes,
		Capacity:      capacity,
	})
	if err != nil {
		nlog.Warningf("closer: disk-full e-mail for disk %d failed to send: %v", disk.ID, err)
	}
}

// CloseOnSemaphore walks every configured path, closing any whose close.me
// semaphore exists, then removing the semaphore. Per-path errors are logged
// and skipped, not fatal - an operator request on one slot should never
// block the rest of the fleet (§4.H).
func (c *Closer) CloseOnSemaphore(ctx context.Context, paths []string) {
	for _, path := range paths {
		semaphore := filepath.Join(path, "close.me")
		if !fsprobe.Exists(semaphore) {
			continue
		}
		if err := c.CloseByPath(ctx, path); err != nil {
			nlog.Errorf("closer: failed to close %s on operator request: %v", path, err)
			continue
		}
		if err := os.Remove(semaphore); err != nil {
			nlog.Warningf("closer: closed %s but could not remove close.me: %v", path, err)
		}
	}
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
