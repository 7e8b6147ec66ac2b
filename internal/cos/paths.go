// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package cos

import "path/filepath"

// SidecarPath computes the on-disk location of a file pair's sidecar JSON,
// relative to a disk's device path: metadata/{u0}/{u1}/{uuid}.json, where
// u0 and u1 are the first two hex characters of uuid (§4.G step 6, §6).
func SidecarPath(devicePath, uuid string) string {
	var u0, u1 string
	if len(uuid) > 0 {
		u0 = string(uuid[0])
	}
	if len(uuid) > 1 {
		u1 = string(uuid[1])
	}
	return filepath.Join(devicePath, "metadata", u0, u1, uuid+".json")
}
