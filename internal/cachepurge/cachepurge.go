// Package cachepurge implements §4.E: removing files from the local cache
// directory once the index confirms enough archival copies exist elsewhere.
// Grounded on the original service's disk_archiver.rs (clean_disk_cache,
// extract_uuids_from_cache, remove_uuids_from_cache, get_required_copies).
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package cachepurge

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jade-archive/datamove/internal/cos"
	"github.com/jade-archive/datamove/internal/index"
	"github.com/jade-archive/datamove/internal/jaderr"
	"github.com/jade-archive/datamove/internal/model"
	"github.com/jade-archive/datamove/internal/nlog"
)

// Purger cleans CacheDir of any file whose data already lives on
// RequiredCopies archival disks.
type Purger struct {
	Store    index.Store
	CacheDir string
	Archives []model.DiskArchive
}

// requiredCopies returns the number of copies every configured archive
// agrees on. It is a configuration error - fatal, per §4.E step 4 - for two
// archives to disagree, since clean_disk_cache has no per-archive notion of
// "safe to remove."
func (p *Purger) requiredCopies() (int, error) {
	if len(p.Archives) == 0 {
		return 0, jaderr.NewCritical("cachepurge: no archives configured, cannot determine required_copies")
	}
	n := p.Archives[0].NumCopies
	for _, a := range p.Archives[1:] {
		if a.NumCopies != n {
			return 0, jaderr.NewCritical("cachepurge: archives disagree on num_copies (%s=%d, %s=%d)", p.Archives[0].ShortName, n, a.ShortName, a.NumCopies)
		}
	}
	return n, nil
}

// Clean performs §4.E steps 1-5.
func (p *Purger) Clean(ctx context.Context) error {
	nlog.Infof("cachepurge: cleaning disk cache: %s", p.CacheDir)

	entries, err := os.ReadDir(p.CacheDir)
	if err != nil {
		return &jaderr.ErrIO{Op: "read cache dir", Err: err}
	}

	cacheSet := make(map[string]string, len(entries)) // uuid -> full path
	var oldestMtime os.FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		uuid, ok := cos.ParseUkey(entry.Name())
		if !ok {
			continue
		}
		cacheSet[uuid] = filepath.Join(p.CacheDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if oldestMtime == nil || info.ModTime().Before(oldestMtime.ModTime()) {
			oldestMtime = info
		}
	}
	nlog.Infof("cachepurge: found %d files to check", len(cacheSet))

	if len(cacheSet) == 0 {
		return nil
	}

	requiredCopies, err := p.requiredCopies()
	if err != nil {
		return err
	}

	cacheDate := oldestMtime.ModTime()
	dbSet, err := p.Store.GetRemovableFiles(ctx, cacheDate, requiredCopies)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "get_removable_files", Err: err}
	}
	nlog.Infof("cachepurge: found %d files ready for removal", len(dbSet))

	removed := 0
	for uuid, path := range cacheSet {
		if !dbSet[uuid] {
			continue
		}
		if err := os.Remove(path); err != nil {
			nlog.Errorf("cachepurge: failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}
	nlog.Infof("cachepurge: removed %d files, disk cache cleaning complete", removed)
	return nil
}
