// Package cos collects small, dependency-light utilities shared by every
// other package in the daemon: UUID generation, byte-exact copy-and-checksum,
// and the canonical archival filename patterns. Named and shaped after
// aistore's cmn/cos package.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package cos

import (
	"regexp"

	"github.com/google/uuid"
)

// GenUUID mints a fresh version-4 identity for a newly claimed disk. The
// value doubles as the disk's zero-byte label filename, which ReadLabels
// recognizes by the canonical 8-4-4-4-12 pattern below, so generation and
// recognition must agree on that shape.
func GenUUID() string {
	return uuid.NewString()
}

// uuidPattern is the canonical 8-4-4-4-12 hex pattern used both for §4.A's
// read_labels (label filenames) and for parsing "ukey_{uuid}_*" inbox names.
var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// IsCanonicalUUID reports whether s has the 8-4-4-4-12 hex UUID shape.
func IsCanonicalUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

// ukeyPattern extracts the file-pair UUID from an inbox filename of the form
// "ukey_{uuid}_...", per §6's "Filename convention (input)".
var ukeyPattern = regexp.MustCompile(`^ukey_([0-9a-f-]{36})_`)

// ParseUkey extracts the file-pair UUID embedded in name, or ok=false if
// name does not match the convention.
func ParseUkey(name string) (uuid string, ok bool) {
	m := ukeyPattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}
