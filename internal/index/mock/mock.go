// Package mock provides an in-memory index.Store for unit tests that need a
// relational index without a live database, mirroring aistore's
// cluster/mock package.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package mock

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jade-archive/datamove/internal/index"
	"github.com/jade-archive/datamove/internal/model"
)

type mapping struct {
	diskID, filePairID, order int64
}

// Store is an in-memory implementation of index.Store, single-process,
// mutex-serialized to emulate the transactional guarantees §4.C promises
// (notably GetNextLabel's strict serialization and AddFilePair's
// check-then-insert idempotence).
type Store struct {
	mu sync.Mutex

	hosts     map[string]*model.Host
	nextHost  int64
	disks     map[int64]*model.Disk
	nextDisk  int64
	filePairs map[string]*model.FilePair
	fpByID    map[int64]*model.FilePair
	mappings  []mapping
	labels    map[string]int // key: archiveUUID|copyID|year -> next sequence to hand out
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		hosts:     make(map[string]*model.Host),
		disks:     make(map[int64]*model.Disk),
		filePairs: make(map[string]*model.FilePair),
		fpByID:    make(map[int64]*model.FilePair),
		labels:    make(map[string]int),
	}
}

// interface guard
var _ index.Store = (*Store)(nil)

// SeedFilePair registers a file pair so FindFilePairByUUID can resolve it -
// test setup helper, not part of index.Store.
func (s *Store) SeedFilePair(fp *model.FilePair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fp.ID == 0 {
		fp.ID = int64(len(s.fpByID) + 1)
	}
	s.filePairs[fp.UUID] = fp
	s.fpByID[fp.ID] = fp
}

func (s *Store) EnsureHost(_ context.Context, hostname string) (*model.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hosts[hostname]; ok {
		return h, nil
	}
	s.nextHost++
	h := &model.Host{ID: s.nextHost, Hostname: hostname}
	s.hosts[hostname] = h
	return h, nil
}

func (s *Store) FindDiskByUUID(_ context.Context, uuid string) (*model.Disk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.disks {
		if d.UUID == uuid {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) FindDiskByID(_ context.Context, id int64) (*model.Disk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.disks[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) CreateDisk(_ context.Context, d *model.Disk) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDisk++
	cp := *d
	cp.ID = s.nextDisk
	s.disks[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) SaveDisk(_ context.Context, d *model.Disk) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.disks[d.ID]
	if !ok {
		return 0, nil
	}
	cp := *d
	cp.SerialNumber = existing.SerialNumber
	cp.DateCreated = existing.DateCreated
	s.disks[d.ID] = &cp
	return 1, nil
}

func (s *Store) SetDiskHold(_ context.Context, diskID int64, onHold bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.disks[diskID]; ok {
		d.OnHold = onHold
	}
	return nil
}

func (s *Store) SetDiskBad(_ context.Context, diskID int64, bad bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.disks[diskID]; ok {
		d.Bad = bad
	}
	return nil
}

func (s *Store) FindOpenDisk(_ context.Context, hostID int64, archiveUUID string, copyID int) (*model.Disk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, d := range s.disks {
		if !d.Bad && !d.Closed && !d.OnHold && d.CopyID == copyID && d.HostID == hostID && d.DiskArchiveUUID == archiveUUID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	cp := *s.disks[ids[0]]
	return &cp, nil
}

func (s *Store) CountOpenDisks(_ context.Context, hostID int64, archiveUUID string, copyID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.disks {
		if !d.Bad && !d.Closed && !d.OnHold && d.CopyID == copyID && d.HostID == hostID && d.DiskArchiveUUID == archiveUUID {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindFilePairByUUID(_ context.Context, uuid string) (*model.FilePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fp, ok := s.filePairs[uuid]; ok {
		cp := *fp
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) FindFilePairOnDisk(_ context.Context, hostID int64, archiveUUID string, copyID int, fpID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.filePairID != fpID {
			continue
		}
		d, ok := s.disks[m.diskID]
		if ok && d.HostID == hostID && d.DiskArchiveUUID == archiveUUID && d.CopyID == copyID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) AddFilePair(_ context.Context, diskID, filePairID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var maxOrder int64 = -1
	for _, m := range s.mappings {
		if m.diskID == diskID && m.filePairID == filePairID {
			return nil // idempotent: already mapped
		}
		if m.diskID == diskID && m.order > maxOrder {
			maxOrder = m.order
		}
	}
	s.mappings = append(s.mappings, mapping{diskID: diskID, filePairID: filePairID, order: maxOrder + 1})
	return nil
}

func (s *Store) CountFilePairCopies(_ context.Context, filePairID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.mappings {
		if m.filePairID != filePairID {
			continue
		}
		d, ok := s.disks[m.diskID]
		if ok && !d.Bad && d.Closed && !d.OnHold {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetRemovableFiles(_ context.Context, cacheDate time.Time, requiredCopies int) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := cacheDate.Add(-30 * 24 * time.Hour)
	counts := make(map[string]int)
	for _, m := range s.mappings {
		d, ok := s.disks[m.diskID]
		if !ok || d.Bad || !d.Closed || d.OnHold || d.DateCreated.Before(cutoff) {
			continue
		}
		fp, ok := s.fpByID[m.filePairID]
		if !ok {
			continue
		}
		counts[fp.UUID]++
	}
	out := make(map[string]bool)
	for uuid, n := range counts {
		if n >= requiredCopies {
			out[uuid] = true
		}
	}
	return out, nil
}

func (s *Store) FindArchivedFilePairUUIDs(_ context.Context, diskID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type entry struct {
		order int64
		uuid  string
	}
	var entries []entry
	for _, m := range s.mappings {
		if m.diskID != diskID {
			continue
		}
		if fp, ok := s.fpByID[m.filePairID]; ok {
			entries = append(entries, entry{order: m.order, uuid: fp.UUID})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.uuid
	}
	return out, nil
}

func (s *Store) GetNextLabel(_ context.Context, archiveUUID string, copyID, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := archiveUUID + "|" + strconv.Itoa(copyID) + "|" + strconv.Itoa(year)
	cur, ok := s.labels[key]
	if !ok {
		s.labels[key] = 1
		return 0, nil
	}
	s.labels[key] = cur + 1
	return cur, nil
}

func (s *Store) GetSerialAgeSecs(_ context.Context, serial string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	found := false
	for _, d := range s.disks {
		if d.SerialNumber == serial && (!found || d.DateCreated.After(last)) {
			last = d.DateCreated
			found = true
		}
	}
	if !found {
		return 0, false, nil
	}
	return time.Since(last).Seconds(), true, nil
}
