// Package fsprobe implements §4.A: pure functions over a filesystem path -
// existence, writability, mount-point detection, free/total space, and
// label-file inspection. No hidden state; expected negative observations
// (missing path, non-writable dir) are plain false results or returned
// errors, never logged at error level, mirroring aistore's fs/ios probing idiom
// (syscall.Statfs in fs/fs_linux.go, unix.Statfs_t in ios/fsutils_linux.go).
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package fsprobe

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jade-archive/datamove/internal/cos"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsWritableDir probes writability the only portable way: create then
// delete a uniquely named canary file, per §4.A.
func IsWritableDir(dir string) bool {
	f, err := os.CreateTemp(dir, ".probe-canary-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// IsMountPoint reports whether path appears as a mount point in the kernel's
// mount table (/proc/self/mountinfo on Linux).
func IsMountPoint(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, errors.Wrap(err, "mountpoint: abs path")
	}
	abs = filepath.Clean(abs)

	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return false, errors.Wrap(err, "mountpoint: open mountinfo")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// mountinfo format: ... mount-id parent-id major:minor root
		// mount-point options ...; the mount point is field index 4.
		if len(fields) < 5 {
			continue
		}
		if filepath.Clean(fields[4]) == abs {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, errors.Wrap(err, "mountpoint: scan mountinfo")
	}
	return false, nil
}

// FreeSpace returns the free bytes available to an unprivileged writer.
func FreeSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, errors.Wrapf(err, "statfs %q", path)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// TotalSpace returns the total capacity of the filesystem mounted at path.
func TotalSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, errors.Wrapf(err, "statfs %q", path)
	}
	return int64(stat.Blocks) * int64(stat.Bsize), nil
}

// ReadLabels returns the names of files directly under path whose name
// matches the canonical 8-4-4-4-12 UUID pattern - a disk's label file(s).
func ReadLabels(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read-labels %q", path)
	}
	var labels []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if cos.IsCanonicalUUID(e.Name()) {
			labels = append(labels, e.Name())
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// CountLabels is a cheap ReadLabels variant for callers that only need the
// count (§4.F's "label_count == 0" gauntlet step).
func CountLabels(path string) (int, error) {
	labels, err := ReadLabels(path)
	if err != nil {
		return 0, err
	}
	return len(labels), nil
}

// TouchLabel atomically creates a zero-byte label file named uuid under
// path. It fails if the file already exists - label files are never
// overwritten while a disk is open (§4.F step e, invariant 1).
func TouchLabel(path, uuid string) error {
	fpath := filepath.Join(path, uuid)
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "touch-label %q", fpath)
	}
	return f.Close()
}

// FlushToDisk fsyncs the open file, the durability guarantee underlying
// every write in §4.G.
func FlushToDisk(f *os.File) error {
	return cos.FlushToDisk(f)
}

// GetFileCount returns the number of regular files directly under dir
// (non-recursive), used for inbox/quarantine depth in the status view.
func GetFileCount(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "get-file-count %q", dir)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// GetOldestFileMtime returns the modification time of the oldest regular
// file directly under dir, or the zero time if dir is empty.
func GetOldestFileMtime(dir string) (time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "get-oldest-file-mtime %q", dir)
	}
	var oldest time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mt := info.ModTime()
		if oldest.IsZero() || mt.Before(oldest) {
			oldest = mt
		}
	}
	return oldest, nil
}

// GetOldestFileAgeSecs is GetOldestFileMtime expressed as an age in seconds
// relative to now.
func GetOldestFileAgeSecs(dir string, now time.Time) (float64, error) {
	mt, err := GetOldestFileMtime(dir)
	if err != nil {
		return 0, err
	}
	if mt.IsZero() {
		return 0, nil
	}
	return now.Sub(mt).Seconds(), nil
}
