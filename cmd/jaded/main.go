// Package main is the disk archival daemon.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jade-archive/datamove/internal/allocator"
	"github.com/jade-archive/datamove/internal/archive"
	"github.com/jade-archive/datamove/internal/cachepurge"
	"github.com/jade-archive/datamove/internal/closer"
	"github.com/jade-archive/datamove/internal/config"
	"github.com/jade-archive/datamove/internal/identity"
	"github.com/jade-archive/datamove/internal/index"
	"github.com/jade-archive/datamove/internal/mailer"
	"github.com/jade-archive/datamove/internal/model"
	"github.com/jade-archive/datamove/internal/nlog"
	"github.com/jade-archive/datamove/internal/orchestrator"
	"github.com/jade-archive/datamove/internal/statusview"
)

var (
	build     string
	buildtime string
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		nlog.ExitLogf("Failed to load configuration: %v", err)
	}

	archives, err := config.LoadDiskArchives(cfg.SpsDiskArchiver.DiskArchivesJSONPath)
	if err != nil {
		nlog.ExitLogf("Failed to load disk archives: %v", err)
	}
	streams, err := config.LoadDataStreams(cfg.SpsDiskArchiver.DataStreamsJSONPath)
	if err != nil {
		nlog.ExitLogf("Failed to load data streams: %v", err)
	}
	contacts, err := config.LoadContacts(cfg.SpsDiskArchiver.ContactsJSONPath)
	if err != nil {
		nlog.ExitLogf("Failed to load contacts: %v", err)
	}

	dsn := index.DSN(cfg.JadeDatabase.Username, cfg.JadeDatabase.Password, cfg.JadeDatabase.Host, cfg.JadeDatabase.Port, cfg.JadeDatabase.DatabaseName)
	store, err := index.Open(dsn)
	if err != nil {
		nlog.ExitLogf("Failed to open database: %v", err)
	}
	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		nlog.ExitLogf("Failed to reach database: %v", err)
	}
	defer store.Close()

	hostname, err := os.Hostname()
	if err != nil {
		nlog.ExitLogf("Failed to determine hostname: %v", err)
	}
	host, err := store.EnsureHost(ctx, hostname)
	if err != nil {
		nlog.ExitLogf("Failed to register host: %v", err)
	}

	m, err := mailer.New(cfg.EmailConfig, contacts, cfg.SpsDiskArchiver.TeraTemplateGlob)
	if err != nil {
		nlog.ExitLogf("Failed to load mail templates: %v", err)
	}

	alloc := &allocator.Allocator{
		Store:                 store,
		Identity:              identity.NewResolver(),
		Mailer:                m,
		HostID:                host.ID,
		Hostname:              hostname,
		MinimumDiskAgeSeconds: cfg.SpsDiskArchiver.MinimumDiskAgeSeconds,
	}

	prober := &statusview.Prober{
		Store:      store,
		HostID:     host.ID,
		Paths:      allPaths(archives),
		Archives:   archives,
		InboxDir:   cfg.SpsDiskArchiver.InboxDir,
		CacheDir:   cfg.SpsDiskArchiver.CacheDir,
		ProblemDir: cfg.SpsDiskArchiver.ProblemFilesDir,
		Metrics:    statusview.NewMetrics(),
	}

	clos := &closer.Closer{
		Store:       store,
		Mailer:      m,
		Prober:      prober,
		Archives:    archives,
		DataStreams: streams,
		Hostname:    hostname,
	}

	writer := &archive.Writer{
		Store:           store,
		Allocator:       alloc,
		Closer:          clos,
		Archives:        archives,
		DataStreams:     streams,
		HostID:          host.ID,
		Hostname:        hostname,
		InboxDir:        cfg.SpsDiskArchiver.InboxDir,
		WorkDir:         cfg.SpsDiskArchiver.WorkDir,
		OutboxDir:       cfg.SpsDiskArchiver.OutboxDir,
		QuarantineDir:   cfg.SpsDiskArchiver.ProblemFilesDir,
		ArchiveHeadroom: cfg.SpsDiskArchiver.ArchiveHeadroom,
		WorkLimitBreak:  cfg.SpsDiskArchiver.WorkLimitBreak,
	}

	purger := &cachepurge.Purger{
		Store:    store,
		CacheDir: cfg.SpsDiskArchiver.CacheDir,
		Archives: archives,
	}

	orch := &orchestrator.Orchestrator{
		Closer:         clos,
		Writer:         writer,
		Purger:         purger,
		Prober:         prober,
		Paths:          allPaths(archives),
		ReclaimWork:    cfg.SpsDiskArchiver.ReclaimWork,
		WorkCycleSleep: time.Duration(cfg.SpsDiskArchiver.WorkCycleSleepSeconds) * time.Second,
	}

	mux := http.NewServeMux()
	orch.RegisterHTTP(mux)
	srv := &http.Server{
		Addr:    fmtAddr(cfg.SpsDiskArchiver.StatusPort),
		Handler: mux,
	}

	nlog.Infof("jaded version %s (build %s) starting on host %s", build, buildtime, hostname)

	runCtx, cancel := context.WithCancel(context.Background())
	installSignalHandler(orch, cancel)

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- srv.ListenAndServe()
	}()

	workDone := make(chan struct{})
	go func() {
		orch.Run(runCtx)
		close(workDone)
	}()

	select {
	case <-workDone:
		if orch.IsFullStop() {
			// A fatal error halted the work loop. The status endpoint keeps
			// serving FULL_STOP until an operator shuts the daemon down.
			nlog.Errorf("jaded: FULL_STOP: work loop halted, status endpoint remains up")
			select {
			case <-orch.ShutdownRequested():
			case err := <-httpDone:
				if err != nil && err != http.ErrServerClosed {
					nlog.Errorf("jaded: HTTP server failed: %v", err)
				}
			}
		}
		nlog.Infof("jaded: shutting down HTTP server")
		srv.Shutdown(context.Background())
	case err := <-httpDone:
		if err != nil && err != http.ErrServerClosed {
			nlog.Errorf("jaded: HTTP server failed: %v", err)
		}
		cancel()
		<-workDone
	}

	nlog.Flush()
}

func allPaths(archives []model.DiskArchive) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range archives {
		for _, p := range a.Paths {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func fmtAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

// installSignalHandler requests a graceful shutdown on the first SIGINT or
// SIGTERM so in-flight work can reach the next safe boundary (§5, §7); a
// second signal forces immediate termination for an operator in a hurry.
func installSignalHandler(orch *orchestrator.Orchestrator, cancel context.CancelFunc) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		nlog.Infof("jaded: signal received, requesting graceful shutdown")
		orch.RequestShutdown()
		cancel()
		<-c
		nlog.Infof("jaded: second signal received, forcing exit")
		nlog.Flush()
		os.Exit(1)
	}()
}
