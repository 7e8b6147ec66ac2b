// Package identity implements §4.B: resolving a mount path to a stable disk
// serial number via the operating system's block-device registry, and
// minting fresh disk identities. Shelling out to lsblk mirrors fs/fs_linux.go's
// "df -PT | awk" idiom for querying block-device info outside of syscalls.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package identity

import (
	"os/exec"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/jade-archive/datamove/internal/cos"
)

type blockDevice struct {
	MountPoint string        `json:"mountpoint"`
	Serial     string        `json:"serial"`
	Children   []blockDevice `json:"children"`
}

type lsblkOutput struct {
	BlockDevices []blockDevice `json:"blockdevices"`
}

// Resolver queries lsblk to map mount paths to disk serial numbers. The
// command name is overridable for tests.
type Resolver struct {
	LsblkPath string
}

// NewResolver returns a Resolver that shells out to the system's lsblk.
func NewResolver() *Resolver {
	return &Resolver{LsblkPath: "lsblk"}
}

// SerialOf resolves the block-device serial number claimed at mountPath.
// An empty, ok=false result means the mapping could not be established,
// which per invariant must prevent claiming the disk (§4.B).
func (r *Resolver) SerialOf(mountPath string) (serial string, ok bool) {
	path := r.LsblkPath
	if path == "" {
		path = "lsblk"
	}
	out, err := exec.Command(path, "--json", "-o", "mountpoint,serial").Output()
	if err != nil {
		return "", false
	}
	var parsed lsblkOutput
	if err := jsoniter.Unmarshal(out, &parsed); err != nil {
		return "", false
	}
	abs, err := filepath.Abs(mountPath)
	if err != nil {
		return "", false
	}
	serial, found := findSerial(parsed.BlockDevices, abs)
	if !found || serial == "" {
		return "", false
	}
	return serial, true
}

func findSerial(devices []blockDevice, mountPath string) (string, bool) {
	for _, d := range devices {
		if d.MountPoint != "" && filepath.Clean(d.MountPoint) == mountPath {
			return d.Serial, true
		}
		if len(d.Children) > 0 {
			if serial, ok := findSerial(d.Children, mountPath); ok {
				return serial, true
			}
		}
	}
	return "", false
}

// MintDiskUUID mints a fresh identity for a newly claimed disk.
func MintDiskUUID() string { return cos.GenUUID() }
