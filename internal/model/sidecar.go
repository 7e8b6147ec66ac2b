// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package model

// ArchivalDiskFile is the per-file-pair sidecar JSON snapshot written beside
// every archived pair at metadata/{u0}/{u1}/{uuid}.json (§4.G step 6, §6).
// Field names and the epoch-millis timestamp convention are taken directly
// from the original implementation's metadata.rs.
type ArchivalDiskFile struct {
	ArchiveChecksum        string `json:"archiveChecksum"`
	ArchiveFile            string `json:"archiveFile"`
	ArchiveSize            int64  `json:"archiveSize"`
	BinaryFile             string `json:"binaryFile"`
	DataStreamUUID         string `json:"dataStreamUuid"`
	DataWarehousePath      string `json:"dataWarehousePath"`
	DateCreated            int64  `json:"dateCreated"`
	DateFetched            int64  `json:"dateFetched"`
	DateProcessed          int64  `json:"dateProcessed"`
	DateUpdated            int64  `json:"dateUpdated"`
	MetadataFile           string `json:"metadataFile"`
	OriginModificationDate int64  `json:"originModificationDate"`
	FetchedByHost          string `json:"fetchedByHost"`
	UUID                   string `json:"uuid"`
}

// ArchivalDiskMetadata is the final manifest written over a disk's label
// file on close (§4.H step 4): the label doubles as a self-describing
// manifest once the disk is no longer writable.
type ArchivalDiskMetadata struct {
	Capacity        int64  `json:"capacity"`
	CopyID          int    `json:"copyId"`
	DateCreated     int64  `json:"dateCreated"`
	DateUpdated     int64  `json:"dateUpdated"`
	DiskArchiveUUID string `json:"diskArchiveUuid"`
	ID              int64  `json:"id"`
	Label           string `json:"label"`
	UUID            string `json:"uuid"`
}

// NewArchivalDiskMetadata converts a Disk into its closing manifest.
func NewArchivalDiskMetadata(d *Disk) *ArchivalDiskMetadata {
	return &ArchivalDiskMetadata{
		Capacity:        d.Capacity,
		CopyID:          d.CopyID,
		DateCreated:     d.DateCreated.UnixMilli(),
		DateUpdated:     d.DateUpdated.UnixMilli(),
		DiskArchiveUUID: d.DiskArchiveUUID,
		ID:              d.ID,
		Label:           d.Label,
		UUID:            d.UUID,
	}
}

// NewArchivalDiskFile converts a FilePair into its on-disk sidecar record.
func NewArchivalDiskFile(fp *FilePair, warehousePath, fetchedByHost string, now int64) *ArchivalDiskFile {
	return &ArchivalDiskFile{
		ArchiveChecksum:        fp.ArchiveChecksum,
		ArchiveFile:            fp.ArchiveFile,
		ArchiveSize:            fp.ArchiveSize,
		BinaryFile:             fp.BinaryFile,
		DataStreamUUID:         fp.DataStreamUUID,
		DataWarehousePath:      warehousePath,
		DateCreated:            fp.DateCreated.UnixMilli(),
		DateFetched:            now,
		DateProcessed:          now,
		DateUpdated:            fp.DateUpdated.UnixMilli(),
		MetadataFile:           fp.MetadataFile,
		OriginModificationDate: fp.OriginModTime.UnixMilli(),
		FetchedByHost:          fetchedByHost,
		UUID:                   fp.UUID,
	}
}
