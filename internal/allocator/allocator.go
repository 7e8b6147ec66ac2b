// Package allocator implements §4.F: resolving the disk to write to for an
// (archive, copy_id) pair, claiming a fresh one from the archive's
// configured paths when no open disk exists. The path gauntlet mirrors
// fs/fs_linux.go's practice of probing a candidate mountpath through several
// independent checks before trusting it. A single call makes no retries; the
// tilt-bounded retry loop lives in the archive writer.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package allocator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jade-archive/datamove/internal/fsprobe"
	"github.com/jade-archive/datamove/internal/identity"
	"github.com/jade-archive/datamove/internal/index"
	"github.com/jade-archive/datamove/internal/jaderr"
	"github.com/jade-archive/datamove/internal/mailer"
	"github.com/jade-archive/datamove/internal/model"
	"github.com/jade-archive/datamove/internal/nlog"
)

// absentPriorUseAge is substituted for the serial-age check when a serial
// has never been seen before (§4.F step c).
const absentPriorUseAge = 10 * 365 * 24 * time.Hour

// Allocator resolves and claims disks for (archive, copy_id) pairs.
type Allocator struct {
	Store                 index.Store
	Identity              *identity.Resolver
	Mailer                *mailer.Mailer
	HostID                int64
	Hostname              string
	MinimumDiskAgeSeconds int64
}

// FindOrCreate resolves the disk to write to for (archive, copyID),
// claiming a fresh one from archive.Paths if none is presently open.
func (a *Allocator) FindOrCreate(ctx context.Context, archive model.DiskArchive, copyID int) (*model.Disk, error) {
	disk, err := a.Store.FindOpenDisk(ctx, a.HostID, archive.UUID, copyID)
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "find_open_disk", Err: err}
	}
	if disk != nil {
		if n, err := a.Store.CountOpenDisks(ctx, a.HostID, archive.UUID, copyID); err == nil && n > 1 {
			nlog.Warningf("allocator: %d open disks for archive %s copy %d, using the lowest id", n, archive.ShortName, copyID)
		}
		return disk, nil
	}

	if err := a.createCopy(ctx, archive, copyID); err != nil {
		return nil, err
	}

	disk, err = a.Store.FindOpenDisk(ctx, a.HostID, archive.UUID, copyID)
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "find_open_disk (post-create)", Err: err}
	}
	if disk == nil {
		return nil, jaderr.NewCritical("no open disk for archive %s copy %d after claiming one", archive.ShortName, copyID)
	}
	return disk, nil
}

// createCopy claims a fresh disk path for (archive, copyID), per §4.F
// step 2.
func (a *Allocator) createCopy(ctx context.Context, archive model.DiskArchive, copyID int) error {
	diskPath, ok := a.choosePath(archive.Paths)
	if !ok {
		return jaderr.NewCritical("no candidate path survived the gauntlet for archive %s copy %d", archive.ShortName, copyID)
	}

	serial, ok := a.Identity.SerialOf(diskPath)
	if !ok {
		return jaderr.NewCritical("could not resolve disk serial number for %s", diskPath)
	}

	age := absentPriorUseAge
	secs, found, err := a.Store.GetSerialAgeSecs(ctx, serial)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "get_serial_age_secs", Err: err}
	}
	if found {
		age = time.Duration(secs * float64(time.Second))
	}
	if age < time.Duration(a.MinimumDiskAgeSeconds)*time.Second {
		return jaderr.NewCritical("serial %s reused too soon: last seen %s ago, minimum is %s", serial, age, time.Duration(a.MinimumDiskAgeSeconds)*time.Second)
	}

	year := time.Now().UTC().Year()
	seq, err := a.Store.GetNextLabel(ctx, archive.UUID, copyID, year)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "get_next_label", Err: err}
	}
	label := formatLabel(archive.ShortName, copyID, year, seq)

	uuid := identity.MintDiskUUID()
	capacity, err := fsprobe.FreeSpace(diskPath)
	if err != nil {
		return &jaderr.ErrIO{Op: "free_space", Err: err}
	}
	if err := fsprobe.TouchLabel(diskPath, uuid); err != nil {
		return &jaderr.ErrIO{Op: "touch_label", Err: err}
	}

	now := time.Now().UTC()
	disk := &model.Disk{
		UUID:            uuid,
		DevicePath:      diskPath,
		Label:           label,
		CopyID:          copyID,
		Capacity:        capacity,
		SerialNumber:    serial,
		DateCreated:     now,
		DateUpdated:     now,
		Closed:          false,
		Bad:             false,
		OnHold:          false,
		DiskArchiveUUID: archive.UUID,
		HostID:          a.HostID,
	}
	id, err := a.Store.CreateDisk(ctx, disk)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "create_disk", Err: err}
	}
	disk.ID = id

	if a.Mailer != nil {
		if err := a.Mailer.SendArchiveStarted(a.Hostname, archive, disk, capacity); err != nil {
			nlog.Warningf("allocator: claim e-mail for disk %s failed to send: %v", disk.UUID, err)
		}
	}
	return nil
}

// choosePath shuffles paths and returns the first that survives the
// gauntlet: exists, writable, a mount point, and carries no label yet.
func (a *Allocator) choosePath(paths []string) (string, bool) {
	shuffled := make([]string, len(paths))
	copy(shuffled, paths)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, p := range shuffled {
		if !fsprobe.Exists(p) {
			continue
		}
		if !fsprobe.IsWritableDir(p) {
			continue
		}
		isMount, err := fsprobe.IsMountPoint(p)
		if err != nil || !isMount {
			continue
		}
		n, err := fsprobe.CountLabels(p)
		if err != nil || n != 0 {
			continue
		}
		return p, true
	}
	return "", false
}

func formatLabel(shortName string, copyID, year, seq int) string {
	return fmt.Sprintf("%s_%d_%d_%04d", shortName, copyID, year, seq)
}
