// Package model holds the domain shapes described in §3 of the design: the
// total, application-facing view of every entity. Database row shapes (many
// nullable columns) live in internal/index and are converted at the
// boundary - keeping two types per entity, per the teacher's
// cmn/cos.FsID / aistore-row conventions of never leaking storage
// representations past the adapter.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package model

import "time"

// FilePair is the atomic archival unit (§3). It is immutable once created by
// an upstream producer; the daemon only ever reads it.
type FilePair struct {
	ID              int64
	UUID            string
	ArchiveFile     string
	ArchiveSize     int64
	ArchiveChecksum string
	BinaryFile      string
	MetadataFile    string
	DataStreamUUID  string
	OriginModTime   time.Time
	DateCreated     time.Time
	DateUpdated     time.Time
}

// DataStream is a named producer of file pairs (§3).
type DataStream struct {
	ID          int64
	UUID        string
	Active      bool
	Archives    []string // short names of the archives this stream must be replicated to
	Compression string

	Sensor          string
	Category        string
	Subcategory     string
	RetroDiskPolicy string
}

// WarehousePath computes the on-disk directory layout for a file pair
// originating from this stream, per the GLOSSARY's "warehouse path":
// {sensor}/{year}/{category}/{subcategory}/{MMDD}.
func (s *DataStream) WarehousePath(originMtime time.Time) string {
	u := originMtime.UTC()
	year := u.Format("2006")
	mmdd := u.Format("0102")
	return s.Sensor + "/" + year + "/" + s.Category + "/" + s.Subcategory + "/" + mmdd
}

// DiskArchive is a named, replicated destination, e.g. "IceCube Disk
// Archive" (§3).
type DiskArchive struct {
	ID          int64
	UUID        string
	Description string
	Name        string
	NumCopies   int
	ShortName   string
	Paths       []string
}

// Disk is a physical removable disk claimed for a specific
// (host, archive, copy_id) (§3).
type Disk struct {
	ID              int64
	UUID            string
	DevicePath      string
	Label           string
	CopyID          int
	Capacity        int64
	SerialNumber    string
	DateCreated     time.Time
	DateUpdated     time.Time
	Closed          bool
	Bad             bool
	OnHold          bool
	DiskArchiveUUID string
	HostID          int64
}

// Host is the identity of the daemon instance, keyed by hostname (§3).
type Host struct {
	ID       int64
	Hostname string
}

// DiskMap records that a file pair is physically written to a disk, with an
// insertion ordinal (§3).
type DiskMap struct {
	DiskID     int64
	FilePairID int64
	Order      int64
}

// Contact is an operator notified by e-mail (§6 "Contacts").
type Contact struct {
	Name  string
	Email string
	Role  ContactRole
}

// ContactRole enumerates who gets notified of what (§6, §7).
type ContactRole string

const (
	RoleDisabled        ContactRole = "DISABLED"
	RoleJadeAdmin       ContactRole = "JADE_ADMIN"
	RoleWinterOver      ContactRole = "WINTER_OVER"
	RoleRunCoordination ContactRole = "RUN_COORDINATION"
)

// NotifyRoles is the set of roles that receive claim/full-disk e-mails
// per §7 ("User-visible failure").
var NotifyRoles = map[ContactRole]bool{
	RoleJadeAdmin:  true,
	RoleWinterOver: true,
}
