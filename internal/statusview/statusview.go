// Package statusview implements §4.D: the per-mount-path status snapshot
// served on GET /status, and the "Not Mounted / Not Usable / Available /
// In-Use / Finished" classification it is built from. Field names and JSON
// shape are grounded on the original service's status/sps.rs DTOs.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package statusview

import (
	"context"
	"time"

	"github.com/jade-archive/datamove/internal/fsprobe"
	"github.com/jade-archive/datamove/internal/index"
	"github.com/jade-archive/datamove/internal/model"
)

// DiskStatus enumerates the classification a mount path resolves to.
type DiskStatus string

const (
	NotMounted DiskStatus = "Not Mounted"
	NotUsable  DiskStatus = "Not Usable"
	Available  DiskStatus = "Available"
	InUse      DiskStatus = "In-Use"
	Finished   DiskStatus = "Finished"
)

// Disk is the per-path status entry embedded in the status bundle.
type Disk struct {
	Status    DiskStatus `json:"status"`
	ID        int64      `json:"id"`
	Closed    *bool      `json:"closed,omitempty"`
	CopyID    *int       `json:"copyId,omitempty"`
	OnHold    *bool      `json:"onHold,omitempty"`
	UUID      string     `json:"uuid,omitempty"`
	Archive   string     `json:"archive,omitempty"`
	Available *bool      `json:"available,omitempty"`
	Label     string     `json:"label,omitempty"`
	Serial    string     `json:"serial,omitempty"`
}

func forStatus(status DiskStatus) Disk {
	d := Disk{Status: status}
	if status == Available {
		t := true
		d.Available = &t
	}
	return d
}

func fromDisk(d *model.Disk, archiveDescription string) Disk {
	status := Finished
	if !d.Closed {
		status = InUse
	}
	closed, onHold := d.Closed, d.OnHold
	copyID := d.CopyID
	return Disk{
		Status:  status,
		ID:      d.ID,
		Closed:  &closed,
		CopyID:  &copyID,
		OnHold:  &onHold,
		UUID:    d.UUID,
		Archive: archiveDescription,
		Label:   d.Label,
		Serial:  d.SerialNumber,
	}
}

// WorkerStatus bundles the per-path status of a single worker (host) - the
// daemon runs with exactly one worker, but the shape allows for more.
type WorkerStatus struct {
	ArchivalDisks map[string]Disk `json:"archivalDisks"`
	InboxCount    uint64          `json:"inboxCount"`
}

// Bundle is the full JSON document served on GET /status.
type Bundle struct {
	Workers          []WorkerStatus `json:"workers"`
	CacheAge         uint64         `json:"cacheAge"`
	InboxAge         uint64         `json:"inboxAge"`
	ProblemFileCount uint64         `json:"problemFileCount"`
	Message          string         `json:"message,omitempty"`
	Status           string         `json:"status,omitempty"`
}

const (
	StatusOK       = "OK"
	StatusFullStop = "FULL_STOP"
)

// Prober computes the live Bundle for a configured fleet of mount paths.
type Prober struct {
	Store      index.Store
	HostID     int64
	Paths      []string
	Archives   []model.DiskArchive
	InboxDir   string
	CacheDir   string
	ProblemDir string
	Metrics    *Metrics
}

func (p *Prober) archiveDescription(uuid string) string {
	for _, a := range p.Archives {
		if a.UUID == uuid {
			return a.Description
		}
	}
	return "Unknown Archive"
}

// ClassifyPath computes a single mount path's status per §4.D steps 1-5.
func (p *Prober) ClassifyPath(ctx context.Context, path string) (Disk, error) {
	if !fsprobe.Exists(path) {
		return forStatus(NotMounted), nil
	}
	if !fsprobe.IsWritableDir(path) {
		return forStatus(NotUsable), nil
	}
	isMount, err := fsprobe.IsMountPoint(path)
	if err != nil {
		// transient probe errors report as NotUsable for this slot (§7)
		return forStatus(NotUsable), nil
	}
	if !isMount {
		return forStatus(NotMounted), nil
	}
	labels, err := fsprobe.ReadLabels(path)
	if err != nil {
		return forStatus(NotUsable), nil
	}
	if len(labels) > 1 {
		return forStatus(NotUsable), nil
	}
	if len(labels) == 0 {
		return forStatus(Available), nil
	}

	disk, err := p.Store.FindDiskByUUID(ctx, labels[0])
	if err != nil || disk == nil {
		return forStatus(NotUsable), nil
	}
	return fromDisk(disk, p.archiveDescription(disk.DiskArchiveUUID)), nil
}

// Snapshot computes the full status bundle: per-path classification plus the
// cache/inbox/quarantine aging metrics and overall health token.
func (p *Prober) Snapshot(ctx context.Context, fullStop bool) Bundle {
	archivalDisks := make(map[string]Disk, len(p.Paths))
	for _, path := range p.Paths {
		disk, err := p.ClassifyPath(ctx, path)
		if err != nil {
			disk = forStatus(NotUsable)
		}
		archivalDisks[path] = disk
	}

	now := time.Now()
	inboxCount, _ := fsprobe.GetFileCount(p.InboxDir)
	inboxAge, _ := fsprobe.GetOldestFileAgeSecs(p.InboxDir, now)
	cacheAge, _ := fsprobe.GetOldestFileAgeSecs(p.CacheDir, now)
	problemCount, _ := fsprobe.GetFileCount(p.ProblemDir)

	status := StatusOK
	if fullStop {
		status = StatusFullStop
	}

	bundle := Bundle{
		Workers: []WorkerStatus{{
			ArchivalDisks: archivalDisks,
			InboxCount:    uint64(inboxCount),
		}},
		CacheAge:         uint64(cacheAge),
		InboxAge:         uint64(inboxAge),
		ProblemFileCount: uint64(problemCount),
		Status:           status,
	}
	p.Metrics.observe(bundle)
	return bundle
}
