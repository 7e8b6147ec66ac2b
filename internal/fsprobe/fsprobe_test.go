// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package fsprobe

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if !Exists(dir) {
		t.Error("expected existing dir to exist")
	}
	if Exists(filepath.Join(dir, "nope")) {
		t.Error("expected missing path to not exist")
	}
}

func TestIsWritableDir(t *testing.T) {
	dir := t.TempDir()
	if !IsWritableDir(dir) {
		t.Error("expected fresh tempdir to be writable")
	}
	if IsWritableDir(filepath.Join(dir, "does-not-exist")) {
		t.Error("expected missing dir to be reported non-writable")
	}
}

func TestTouchLabelAndReadLabels(t *testing.T) {
	dir := t.TempDir()
	uuid := "11111111-1111-1111-1111-111111111111"
	if err := TouchLabel(dir, uuid); err != nil {
		t.Fatalf("TouchLabel: %v", err)
	}
	// second touch of the same uuid must fail: labels are never overwritten
	if err := TouchLabel(dir, uuid); err == nil {
		t.Error("expected second TouchLabel to fail (file exists)")
	}
	labels, err := ReadLabels(dir)
	if err != nil {
		t.Fatalf("ReadLabels: %v", err)
	}
	if len(labels) != 1 || labels[0] != uuid {
		t.Errorf("ReadLabels = %v, want [%s]", labels, uuid)
	}
	n, err := CountLabels(dir)
	if err != nil || n != 1 {
		t.Errorf("CountLabels = %d, %v, want 1, nil", n, err)
	}

	// a non-uuid file must not be counted as a label
	if err := os.WriteFile(filepath.Join(dir, "not-a-label.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, _ = CountLabels(dir)
	if n != 1 {
		t.Errorf("CountLabels after adding non-label file = %d, want 1", n)
	}
}

func TestGetFileCountAndOldest(t *testing.T) {
	dir := t.TempDir()
	n, err := GetFileCount(dir)
	if err != nil || n != 0 {
		t.Fatalf("GetFileCount(empty) = %d, %v", n, err)
	}

	older := filepath.Join(dir, "older.dat")
	if err := os.WriteFile(older, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	oldTime := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, oldTime, oldTime); err != nil {
		t.Fatal(err)
	}
	newer := filepath.Join(dir, "newer.dat")
	if err := os.WriteFile(newer, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err = GetFileCount(dir)
	if err != nil || n != 2 {
		t.Fatalf("GetFileCount = %d, %v, want 2", n, err)
	}

	mt, err := GetOldestFileMtime(dir)
	if err != nil {
		t.Fatalf("GetOldestFileMtime: %v", err)
	}
	if !mt.Equal(oldTime.Truncate(time.Second)) && mt.Sub(oldTime).Abs() > time.Second {
		t.Errorf("GetOldestFileMtime = %v, want ~%v", mt, oldTime)
	}

	age, err := GetOldestFileAgeSecs(dir, time.Now())
	if err != nil {
		t.Fatalf("GetOldestFileAgeSecs: %v", err)
	}
	if age < 3500 || age > 3700 {
		t.Errorf("GetOldestFileAgeSecs = %v, want ~3600", age)
	}
}
