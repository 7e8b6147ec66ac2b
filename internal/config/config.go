// Package config loads the daemon's TOML configuration document and its
// three JSON side-files (§6 "Configuration"). Mirrors cmd/authn/main.go's
// env-var-names-a-path, fatal-if-missing loading idiom, generalized from
// aistore's own JSON config to this spec's mandated TOML document.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/jade-archive/datamove/internal/model"
)

// ConfigEnvVar is the environment variable naming the TOML configuration
// file's path (§6).
const ConfigEnvVar = "DATAMOVE_CONFIG"

// Config is the top-level TOML document.
type Config struct {
	JadeDatabase    JadeDatabaseConfig    `toml:"jade_database"`
	SpsDiskArchiver SpsDiskArchiverConfig `toml:"sps_disk_archiver"`
	EmailConfig     EmailConfig           `toml:"email_configuration"`
}

// JadeDatabaseConfig names the relational index's connection parameters.
type JadeDatabaseConfig struct {
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	Host         string `toml:"host"`
	Port         uint16 `toml:"port"`
	DatabaseName string `toml:"database_name"`
}

// SpsDiskArchiverConfig is the archival daemon's own operating parameters.
type SpsDiskArchiverConfig struct {
	InboxDir              string `toml:"inbox_dir"`
	OutboxDir             string `toml:"outbox_dir"`
	WorkDir               string `toml:"work_dir"`
	CacheDir              string `toml:"cache_dir"`
	ProblemFilesDir       string `toml:"problem_files_dir"`
	DiskArchivesJSONPath  string `toml:"disk_archives_json_path"`
	DataStreamsJSONPath   string `toml:"data_streams_json_path"`
	ContactsJSONPath      string `toml:"contacts_json_path"`
	TeraTemplateGlob      string `toml:"tera_template_glob"`
	StatusPort            int    `toml:"status_port"`
	WorkCycleSleepSeconds int64  `toml:"work_cycle_sleep_seconds"`
	WorkLimitBreak        int    `toml:"work_limit_break"`
	ArchiveHeadroom       int64  `toml:"archive_headroom"`
	MinimumDiskAgeSeconds int64  `toml:"minimum_disk_age_seconds"`
	ReclaimWork           bool   `toml:"reclaim_work"`
}

// EmailConfig names the SMTP relay the mailer package sends through.
type EmailConfig struct {
	Enabled  bool   `toml:"enabled"`
	From     string `toml:"from"`
	ReplyTo  string `toml:"reply_to"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Load reads and parses the TOML document at path.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, errors.Wrapf(err, "load config %q", path)
	}
	return &c, nil
}

// LoadFromEnv reads ConfigEnvVar and loads the document it names. Missing
// env var or unreadable file is a startup failure (§6 "Exit codes").
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(ConfigEnvVar)
	if path == "" {
		return nil, errors.Errorf("missing required environment variable %s", ConfigEnvVar)
	}
	return Load(path)
}

//
// JSON side-files
//

type diskArchivesDoc struct {
	DiskArchives []diskArchiveJSON `json:"diskArchives"`
}

type diskArchiveJSON struct {
	ID          int64    `json:"id"`
	UUID        string   `json:"uuid"`
	Description string   `json:"description"`
	Name        string   `json:"name"`
	NumCopies   int      `json:"numCopies"`
	Paths       []string `json:"paths"`
	ShortName   string   `json:"shortName"`
}

type dataStreamsDoc struct {
	DataStreams []dataStreamJSON `json:"dataStreams"`
}

type dataStreamJSON struct {
	ID              int64              `json:"id"`
	UUID            string             `json:"uuid"`
	Active          bool               `json:"active"`
	Compression     string             `json:"compression"`
	Archives        []string           `json:"archives"`
	StreamMetadata  streamMetadataJSON `json:"streamMetadata"`
	RetroDiskPolicy string             `json:"retroDiskPolicy"`
}

type streamMetadataJSON struct {
	SensorName  string `json:"sensorName"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

type contactsDoc struct {
	Contacts []model.Contact `json:"contacts"`
}

// LoadDiskArchives parses the Disk Archives JSON side-file (§6).
func LoadDiskArchives(path string) ([]model.DiskArchive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read disk archives %q", path)
	}
	var doc diskArchivesDoc
	if err := jsoniter.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse disk archives %q", path)
	}
	out := make([]model.DiskArchive, 0, len(doc.DiskArchives))
	for _, a := range doc.DiskArchives {
		out = append(out, model.DiskArchive{
			ID:          a.ID,
			UUID:        a.UUID,
			Description: a.Description,
			Name:        a.Name,
			NumCopies:   a.NumCopies,
			ShortName:   a.ShortName,
			Paths:       a.Paths,
		})
	}
	return out, nil
}

// LoadDataStreams parses the Data Streams JSON side-file (§6).
func LoadDataStreams(path string) ([]model.DataStream, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read data streams %q", path)
	}
	var doc dataStreamsDoc
	if err := jsoniter.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse data streams %q", path)
	}
	out := make([]model.DataStream, 0, len(doc.DataStreams))
	for _, s := range doc.DataStreams {
		out = append(out, model.DataStream{
			ID:              s.ID,
			UUID:            s.UUID,
			Active:          s.Active,
			Archives:        s.Archives,
			Compression:     s.Compression,
			Sensor:          s.StreamMetadata.SensorName,
			Category:        s.StreamMetadata.Category,
			Subcategory:     s.StreamMetadata.Subcategory,
			RetroDiskPolicy: s.RetroDiskPolicy,
		})
	}
	return out, nil
}

// LoadContacts parses the Contacts JSON side-file (§6).
func LoadContacts(path string) ([]model.Contact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read contacts %q", path)
	}
	var doc contactsDoc
	if err := jsoniter.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse contacts %q", path)
	}
	return doc.Contacts, nil
}
