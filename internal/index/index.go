// Package index implements §4.C: the transactional adapter over the
// relational store of record for disks, file pairs, hosts, labels, and
// disk/file-pair placements. Row shapes here are deliberately distinct from
// internal/model's domain shapes (many nullable columns vs. total fields);
// conversion happens at the boundary of every exported method, mirroring
// the original's MySqlJade* row structs (disk.rs, file_pair.rs, host.rs,
// disk_label.rs) and aistore's convention of never leaking storage
// representations past an adapter (cmn/cos.FsID, volume/vmd.go's private
// fsMpathMD vs. public Mountpath).
//
// Queries are plain SQL via database/sql, no query builder or ORM, matching
// the directness of the pack's database/sql examples.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/jade-archive/datamove/internal/jaderr"
	"github.com/jade-archive/datamove/internal/model"
)

// Index wraps a MySQL connection pool. All methods are safe for concurrent
// use; multi-statement operations open their own transaction internally and
// hold it only as long as strictly necessary (per the design's "transactions
// are short" rule).
type Index struct {
	db *sql.DB
}

// DSN builds a MySQL data-source name from the daemon's configuration.
func DSN(username, password, host string, port uint16, dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", username, password, host, port, dbName)
}

// Open establishes the connection pool. It does not itself verify
// connectivity; callers should Ping to fail fast at startup (§6 "Exit
// codes": database unreachable at lazy-pool construction).
func Open(dsn string) (*Index, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "open", Err: err}
	}
	return &Index{db: db}, nil
}

// Ping verifies connectivity, used once at startup.
func (ix *Index) Ping(ctx context.Context) error {
	if err := ix.db.PingContext(ctx); err != nil {
		return &jaderr.ErrDatabase{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the pool.
func (ix *Index) Close() error { return ix.db.Close() }

//
// Host
//

// EnsureHost creates the host row if absent, then reads it back - idempotent,
// per §4.C.
func (ix *Index) EnsureHost(ctx context.Context, hostname string) (*model.Host, error) {
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO jade_host (host_name, date_created, date_updated, allow_job_claim, allow_job_work, allow_open_job_claim)
		 SELECT ?, ?, ?, 1, 1, 1 FROM DUAL
		 WHERE NOT EXISTS (SELECT 1 FROM jade_host WHERE host_name = ?)`,
		hostname, time.Now(), time.Now(), hostname,
	)
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "ensure_host insert", Err: err}
	}
	row := ix.db.QueryRowContext(ctx, `SELECT jade_host_id, host_name FROM jade_host WHERE host_name = ?`, hostname)
	var h model.Host
	if err := row.Scan(&h.ID, &h.Hostname); err != nil {
		return nil, &jaderr.ErrDatabase{Op: "ensure_host select", Err: err}
	}
	return &h, nil
}

//
// Disk
//

const diskColumns = `jade_disk_id, uuid, device_path, label, copy_id, capacity, serial_number,
	date_created, date_updated, closed, bad, on_hold, disk_archive_uuid, jade_host_id`

func scanDisk(row interface{ Scan(...any) error }) (*model.Disk, error) {
	var d model.Disk
	var uuid, devicePath, label, serial, archiveUUID sql.NullString
	if err := row.Scan(&d.ID, &uuid, &devicePath, &label, &d.CopyID, &d.Capacity, &serial,
		&d.DateCreated, &d.DateUpdated, &d.Closed, &d.Bad, &d.OnHold, &archiveUUID, &d.HostID); err != nil {
		return nil, err
	}
	d.UUID = uuid.String
	d.DevicePath = devicePath.String
	d.Label = label.String
	d.SerialNumber = serial.String
	d.DiskArchiveUUID = archiveUUID.String
	return &d, nil
}

// FindDiskByUUID looks up a disk by its label-file UUID.
func (ix *Index) FindDiskByUUID(ctx context.Context, uuid string) (*model.Disk, error) {
	row := ix.db.QueryRowContext(ctx, `SELECT `+diskColumns+` FROM jade_disk WHERE uuid = ?`, uuid)
	d, err := scanDisk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "find_disk_by_uuid", Err: err}
	}
	return d, nil
}

// FindDiskByID looks up a disk by its primary key.
func (ix *Index) FindDiskByID(ctx context.Context, id int64) (*model.Disk, error) {
	row := ix.db.QueryRowContext(ctx, `SELECT `+diskColumns+` FROM jade_disk WHERE jade_disk_id = ?`, id)
	d, err := scanDisk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "find_by_id", Err: err}
	}
	return d, nil
}

// CreateDisk inserts a fresh row with caller-supplied fields and returns the
// new primary key (§4.C).
func (ix *Index) CreateDisk(ctx context.Context, d *model.Disk) (int64, error) {
	res, err := ix.db.ExecContext(ctx,
		`INSERT INTO jade_disk (uuid, device_path, label, copy_id, capacity, serial_number,
			date_created, date_updated, closed, bad, on_hold, disk_archive_uuid, jade_host_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.UUID, d.DevicePath, d.Label, d.CopyID, d.Capacity, d.SerialNumber,
		d.DateCreated, d.DateUpdated, d.Closed, d.Bad, d.OnHold, d.DiskArchiveUUID, d.HostID,
	)
	if err != nil {
		return 0, &jaderr.ErrDatabase{Op: "create_disk", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &jaderr.ErrDatabase{Op: "create_disk last_insert_id", Err: err}
	}
	return id, nil
}

// SaveDisk runs inside a transaction and updates every mutable disk field;
// the caller expects exactly one affected row (§4.C).
func (ix *Index) SaveDisk(ctx context.Context, d *model.Disk) (int64, error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &jaderr.ErrDatabase{Op: "save_disk begin", Err: err}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE jade_disk SET device_path=?, label=?, capacity=?, serial_number=?,
			date_updated=?, closed=?, bad=?, on_hold=? WHERE jade_disk_id=?`,
		d.DevicePath, d.Label, d.Capacity, d.SerialNumber, d.DateUpdated, d.Closed, d.Bad, d.OnHold, d.ID,
	)
	if err != nil {
		tx.Rollback()
		return 0, &jaderr.ErrDatabase{Op: "save_disk update", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, &jaderr.ErrDatabase{Op: "save_disk rows_affected", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &jaderr.ErrDatabase{Op: "save_disk commit", Err: err}
	}
	return n, nil
}

// SetDiskHold and SetDiskBad are minimal administrative setters - the data
// model requires these flags be settable (invariant 3) even though the
// distilled spec names no operator command for them.
func (ix *Index) SetDiskHold(ctx context.Context, diskID int64, onHold bool) error {
	_, err := ix.db.ExecContext(ctx, `UPDATE jade_disk SET on_hold=?, date_updated=? WHERE jade_disk_id=?`,
		onHold, time.Now(), diskID)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "set_disk_hold", Err: err}
	}
	return nil
}

func (ix *Index) SetDiskBad(ctx context.Context, diskID int64, bad bool) error {
	_, err := ix.db.ExecContext(ctx, `UPDATE jade_disk SET bad=?, date_updated=? WHERE jade_disk_id=?`,
		bad, time.Now(), diskID)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "set_disk_bad", Err: err}
	}
	return nil
}

// FindOpenDisk returns the single disk matching
// bad=false AND closed=false AND on_hold=false AND copy_id=? AND host_id=? AND disk_archive_uuid=?.
// If the database unexpectedly has more than one such row, the first one
// (by primary key) is returned deterministically and a warning is logged by
// the caller - the database is relied upon to enforce at-most-one in
// practice (§4.C).
func (ix *Index) FindOpenDisk(ctx context.Context, hostID int64, archiveUUID string, copyID int) (*model.Disk, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT `+diskColumns+` FROM jade_disk
		 WHERE bad=false AND closed=false AND on_hold=false AND copy_id=? AND jade_host_id=? AND disk_archive_uuid=?
		 ORDER BY jade_disk_id ASC`,
		copyID, hostID, archiveUUID,
	)
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "find_open_disk", Err: err}
	}
	defer rows.Close()
	var found []*model.Disk
	for rows.Next() {
		d, err := scanDisk(rows)
		if err != nil {
			return nil, &jaderr.ErrDatabase{Op: "find_open_disk scan", Err: err}
		}
		found = append(found, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &jaderr.ErrDatabase{Op: "find_open_disk rows", Err: err}
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// CountOpenDisks counts the open disks FindOpenDisk would consider, so the
// allocator can log the more-than-one-open-disk warning §4.C requires
// without re-querying rows.
func (ix *Index) CountOpenDisks(ctx context.Context, hostID int64, archiveUUID string, copyID int) (int, error) {
	var n int
	row := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jade_disk
		 WHERE bad=false AND closed=false AND on_hold=false AND copy_id=? AND jade_host_id=? AND disk_archive_uuid=?`,
		copyID, hostID, archiveUUID,
	)
	if err := row.Scan(&n); err != nil {
		return 0, &jaderr.ErrDatabase{Op: "count_open_disks", Err: err}
	}
	return n, nil
}

//
// File pair
//

const filePairColumns = `jade_file_pair_id, jade_file_pair_uuid, archive_file, archive_size, archive_checksum,
	binary_file, metadata_file, jade_data_stream_uuid, date_modified_origin, date_created, date_updated`

func scanFilePair(row interface{ Scan(...any) error }) (*model.FilePair, error) {
	var fp model.FilePair
	var uuid, archiveFile, checksum, binaryFile, metaFile, streamUUID sql.NullString
	var originMod sql.NullTime
	if err := row.Scan(&fp.ID, &uuid, &archiveFile, &fp.ArchiveSize, &checksum, &binaryFile, &metaFile,
		&streamUUID, &originMod, &fp.DateCreated, &fp.DateUpdated); err != nil {
		return nil, err
	}
	fp.UUID = uuid.String
	fp.ArchiveFile = archiveFile.String
	fp.ArchiveChecksum = checksum.String
	fp.BinaryFile = binaryFile.String
	fp.MetadataFile = metaFile.String
	fp.DataStreamUUID = streamUUID.String
	fp.OriginModTime = originMod.Time
	return &fp, nil
}

// FindFilePairByUUID resolves a FilePair by its stable UUID, for the
// archive writer's per-inbox-file lookup (§4.G step 3).
func (ix *Index) FindFilePairByUUID(ctx context.Context, uuid string) (*model.FilePair, error) {
	row := ix.db.QueryRowContext(ctx, `SELECT `+filePairColumns+` FROM jade_file_pair WHERE jade_file_pair_uuid = ?`, uuid)
	fp, err := scanFilePair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "find_file_pair_by_uuid", Err: err}
	}
	return fp, nil
}

// FindFilePairOnDisk reports whether this (host, archive, copy) already has
// pair fpID mapped - the presence check that makes archival idempotent
// (§4.C, §8 "Idempotent archive").
func (ix *Index) FindFilePairOnDisk(ctx context.Context, hostID int64, archiveUUID string, copyID int, fpID int64) (bool, error) {
	var n int
	row := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jade_map_disk_to_file_pair m
		 JOIN jade_disk d ON d.jade_disk_id = m.jade_disk_id
		 WHERE m.jade_file_pair_id = ? AND d.jade_host_id = ? AND d.disk_archive_uuid = ? AND d.copy_id = ?`,
		fpID, hostID, archiveUUID, copyID,
	)
	if err := row.Scan(&n); err != nil {
		return false, &jaderr.ErrDatabase{Op: "find_file_pair_on_disk", Err: err}
	}
	return n > 0, nil
}

//
// Disk <-> file-pair mapping
//

// AddFilePair performs the four-step transactional append described in
// §4.C: check-exists, compute next order, insert, commit. Safe under
// concurrent invocation for distinct (disk_id, file_pair_id) pairs thanks to
// the transaction plus a uniqueness constraint on (jade_disk_id,
// jade_file_pair_id) the schema is expected to carry.
func (ix *Index) AddFilePair(ctx context.Context, diskID, filePairID int64) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return &jaderr.ErrDatabase{Op: "add_file_pair begin", Err: err}
	}
	var exists int
	row := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jade_map_disk_to_file_pair WHERE jade_disk_id=? AND jade_file_pair_id=?`,
		diskID, filePairID)
	if err := row.Scan(&exists); err != nil {
		tx.Rollback()
		return &jaderr.ErrDatabase{Op: "add_file_pair exists-check", Err: err}
	}
	if exists > 0 {
		tx.Rollback()
		return nil
	}
	var nextOrder int64
	row = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(jade_file_pair_order), -1) + 1 FROM jade_map_disk_to_file_pair WHERE jade_disk_id=?`,
		diskID)
	if err := row.Scan(&nextOrder); err != nil {
		tx.Rollback()
		return &jaderr.ErrDatabase{Op: "add_file_pair next-order", Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jade_map_disk_to_file_pair (jade_disk_id, jade_file_pair_id, jade_file_pair_order) VALUES (?, ?, ?)`,
		diskID, filePairID, nextOrder); err != nil {
		tx.Rollback()
		return &jaderr.ErrDatabase{Op: "add_file_pair insert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &jaderr.ErrDatabase{Op: "add_file_pair commit", Err: err}
	}
	return nil
}

// CountFilePairCopies counts distinct good, closed, non-held disks mapping
// filePairID (§4.C).
func (ix *Index) CountFilePairCopies(ctx context.Context, filePairID int64) (int, error) {
	var n int
	row := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(m.jade_disk_id) FROM jade_map_disk_to_file_pair m
		 JOIN jade_disk d ON d.jade_disk_id = m.jade_disk_id
		 WHERE m.jade_file_pair_id = ? AND d.bad=false AND d.closed=true AND d.on_hold=false`,
		filePairID,
	)
	if err := row.Scan(&n); err != nil {
		return 0, &jaderr.ErrDatabase{Op: "count_file_pair_copies", Err: err}
	}
	return n, nil
}

// GetRemovableFiles returns the set of file-pair UUIDs that reside on at
// least requiredCopies good, closed disks created no earlier than
// cacheDate-30d (§4.C, §9 Open Question ii keeps this 30-day guard).
func (ix *Index) GetRemovableFiles(ctx context.Context, cacheDate time.Time, requiredCopies int) (map[string]bool, error) {
	cutoff := cacheDate.Add(-30 * 24 * time.Hour)
	rows, err := ix.db.QueryContext(ctx,
		`SELECT fp.jade_file_pair_uuid
		 FROM jade_file_pair fp
		 JOIN jade_map_disk_to_file_pair m ON m.jade_file_pair_id = fp.jade_file_pair_id
		 JOIN jade_disk d ON d.jade_disk_id = m.jade_disk_id
		 WHERE d.closed=true AND d.bad=false AND d.on_hold=false AND d.date_created >= ?
		 GROUP BY fp.jade_file_pair_uuid
		 HAVING COUNT(DISTINCT d.jade_disk_id) >= ?`,
		cutoff, requiredCopies,
	)
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "get_removable_files", Err: err}
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, &jaderr.ErrDatabase{Op: "get_removable_files scan", Err: err}
		}
		out[uuid] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &jaderr.ErrDatabase{Op: "get_removable_files rows", Err: err}
	}
	return out, nil
}

// FindArchivedFilePairUUIDs returns every file-pair UUID mapped to diskID,
// in insertion order (§4.C).
func (ix *Index) FindArchivedFilePairUUIDs(ctx context.Context, diskID int64) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT fp.jade_file_pair_uuid FROM jade_map_disk_to_file_pair m
		 JOIN jade_file_pair fp ON fp.jade_file_pair_id = m.jade_file_pair_id
		 WHERE m.jade_disk_id = ? ORDER BY m.jade_file_pair_order ASC`,
		diskID,
	)
	if err != nil {
		return nil, &jaderr.ErrDatabase{Op: "find_archived_file_pair_uuids", Err: err}
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, &jaderr.ErrDatabase{Op: "find_archived_file_pair_uuids scan", Err: err}
		}
		out = append(out, uuid)
	}
	return out, rows.Err()
}

//
// Disk label sequence
//

// GetNextLabel implements the strict per-(archive,copy,year) sequence
// described in §4.C: select-for-update, then either increment an existing
// row or insert a fresh one at 1, returning the value to embed in the next
// label (the *previous* stored value, or 0 if this is the first disk).
func (ix *Index) GetNextLabel(ctx context.Context, archiveUUID string, copyID, year int) (int, error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &jaderr.ErrDatabase{Op: "get_next_label begin", Err: err}
	}
	var current int
	row := tx.QueryRowContext(ctx,
		`SELECT disk_archive_sequence FROM jade_disk_label
		 WHERE disk_archive_uuid=? AND copy_id=? AND disk_archive_year=? FOR UPDATE`,
		archiveUUID, copyID, year)
	err = row.Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jade_disk_label (disk_archive_uuid, copy_id, disk_archive_year, disk_archive_sequence, date_created, date_updated)
			 VALUES (?, ?, ?, 1, ?, ?)`,
			archiveUUID, copyID, year, time.Now(), time.Now()); err != nil {
			tx.Rollback()
			return 0, &jaderr.ErrDatabase{Op: "get_next_label insert", Err: err}
		}
		if err := tx.Commit(); err != nil {
			return 0, &jaderr.ErrDatabase{Op: "get_next_label commit", Err: err}
		}
		return 0, nil
	case err != nil:
		tx.Rollback()
		return 0, &jaderr.ErrDatabase{Op: "get_next_label select", Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE jade_disk_label SET disk_archive_sequence=disk_archive_sequence+1, date_updated=?
		 WHERE disk_archive_uuid=? AND copy_id=? AND disk_archive_year=?`,
		time.Now(), archiveUUID, copyID, year); err != nil {
		tx.Rollback()
		return 0, &jaderr.ErrDatabase{Op: "get_next_label update", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &jaderr.ErrDatabase{Op: "get_next_label commit", Err: err}
	}
	return current, nil
}

//
// Serial reuse guard
//

// GetSerialAgeSecs returns the age of the most recent use of serial, or
// ok=false if the serial has never been seen (§4.C, invariant 6).
func (ix *Index) GetSerialAgeSecs(ctx context.Context, serial string) (secs float64, ok bool, err error) {
	var last sql.NullTime
	row := ix.db.QueryRowContext(ctx,
		`SELECT MAX(date_created) FROM jade_disk WHERE serial_number = ?`, serial)
	if scanErr := row.Scan(&last); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, &jaderr.ErrDatabase{Op: "get_serial_age_secs", Err: scanErr}
	}
	if !last.Valid {
		return 0, false, nil
	}
	return time.Since(last.Time).Seconds(), true, nil
}
