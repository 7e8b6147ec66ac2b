// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package identity

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fakeLsblk writes a tiny script that emits canned lsblk --json output,
// standing in for the real binary so the resolver's parsing logic is
// exercised without depending on an actual block-device on the test host.
func fakeLsblk(t *testing.T, mountPath, serial string) string {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("fake lsblk script requires a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "lsblk")
	body := "#!/bin/sh\ncat <<'EOF'\n{\"blockdevices\":[{\"mountpoint\":null,\"serial\":null,\"children\":[" +
		"{\"mountpoint\":\"" + mountPath + "\",\"serial\":\"" + serial + "\"}]}]}\nEOF\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestSerialOfFound(t *testing.T) {
	mountPath := t.TempDir()
	abs, _ := filepath.Abs(mountPath)
	r := &Resolver{LsblkPath: fakeLsblk(t, abs, "SERIAL123")}
	serial, ok := r.SerialOf(mountPath)
	if !ok || serial != "SERIAL123" {
		t.Errorf("SerialOf() = (%q, %v), want (SERIAL123, true)", serial, ok)
	}
}

func TestSerialOfNotFound(t *testing.T) {
	r := &Resolver{LsblkPath: fakeLsblk(t, "/mnt/other", "SERIAL999")}
	_, ok := r.SerialOf(t.TempDir())
	if ok {
		t.Error("expected SerialOf to fail for a mountpoint lsblk doesn't report")
	}
}

func TestSerialOfBadCommand(t *testing.T) {
	r := &Resolver{LsblkPath: "/no/such/binary"}
	_, ok := r.SerialOf("/tmp")
	if ok {
		t.Error("expected SerialOf to fail when lsblk cannot be executed")
	}
}
