// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package index

import (
	"context"
	"time"

	"github.com/jade-archive/datamove/internal/model"
)

// Store is the subset of Index's behavior the allocator, writer, closer,
// and cache-purge subsystems depend on. Separating the interface from the
// concrete MySQL-backed Index lets those subsystems be tested against an
// in-memory fake instead of a live database, the same way aistore's
// cluster/mock package stands in for a live cluster map in unit tests.
type Store interface {
	EnsureHost(ctx context.Context, hostname string) (*model.Host, error)

	FindDiskByUUID(ctx context.Context, uuid string) (*model.Disk, error)
	FindDiskByID(ctx context.Context, id int64) (*model.Disk, error)
	CreateDisk(ctx context.Context, d *model.Disk) (int64, error)
	SaveDisk(ctx context.Context, d *model.Disk) (int64, error)
	SetDiskHold(ctx context.Context, diskID int64, onHold bool) error
	SetDiskBad(ctx context.Context, diskID int64, bad bool) error
	FindOpenDisk(ctx context.Context, hostID int64, archiveUUID string, copyID int) (*model.Disk, error)
	CountOpenDisks(ctx context.Context, hostID int64, archiveUUID string, copyID int) (int, error)

	FindFilePairByUUID(ctx context.Context, uuid string) (*model.FilePair, error)
	FindFilePairOnDisk(ctx context.Context, hostID int64, archiveUUID string, copyID int, fpID int64) (bool, error)

	AddFilePair(ctx context.Context, diskID, filePairID int64) error
	CountFilePairCopies(ctx context.Context, filePairID int64) (int, error)
	GetRemovableFiles(ctx context.Context, cacheDate time.Time, requiredCopies int) (map[string]bool, error)
	FindArchivedFilePairUUIDs(ctx context.Context, diskID int64) ([]string, error)

	GetNextLabel(ctx context.Context, archiveUUID string, copyID, year int) (int, error)
	GetSerialAgeSecs(ctx context.Context, serial string) (secs float64, ok bool, err error)
}

// interface guard
var _ Store = (*Index)(nil)
