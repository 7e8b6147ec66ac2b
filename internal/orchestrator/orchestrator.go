// Package orchestrator implements §4.I: the single cooperative work-cycle
// loop (close-on-semaphore, reclaim abandoned work, archive the inbox, purge
// the cache), the shared shutdown flag, and the HTTP surface (/status,
// /metrics, /shutdown) built on top of it. Grounded on the original
// service's DiskArchiver::run/do_work_cycle/request_shutdown and on
// status/net.rs's axum handlers, generalized to stdlib net/http per
// `ais/test/target_mock.go`'s http.NewServeMux()+http.Server shape.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jade-archive/datamove/internal/archive"
	"github.com/jade-archive/datamove/internal/cachepurge"
	"github.com/jade-archive/datamove/internal/closer"
	"github.com/jade-archive/datamove/internal/nlog"
	"github.com/jade-archive/datamove/internal/statusview"
)

// Orchestrator owns the shared shutdown flag and drives the work-cycle loop
// described in §4.I.
type Orchestrator struct {
	Closer *closer.Closer
	Writer *archive.Writer
	Purger *cachepurge.Purger
	Prober *statusview.Prober

	Paths          []string
	ReclaimWork    bool
	WorkCycleSleep time.Duration

	mu        sync.Mutex
	shutdown  bool
	fullStop  bool
	cancel    context.CancelFunc
	requested chan struct{}
	reqClosed bool
}

// requestedCh lazily initializes the shutdown-request channel so a
// zero-value Orchestrator works without a constructor.
func (o *Orchestrator) requestedCh() chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.requested == nil {
		o.requested = make(chan struct{})
	}
	return o.requested
}

// ShutdownRequested is closed the first time an operator asks the daemon to
// terminate, via HTTP or signal. A fatal work-cycle error does NOT close it:
// FULL_STOP halts the work loop but the process - and its status endpoint -
// stays up until an explicit shutdown request arrives (§7).
func (o *Orchestrator) ShutdownRequested() <-chan struct{} {
	return o.requestedCh()
}

// Run executes the work-cycle loop until shutdown is requested (by the HTTP
// handler or a fatal error) or ctx is cancelled. It owns its own derived,
// cancellable context so RequestShutdown can unblock an in-flight
// archive_inbox cycle immediately rather than waiting for the next loop
// boundary (§5 "Cancellation").
func (o *Orchestrator) Run(ctx context.Context) {
	cycleCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	for !o.isShutdown() && ctx.Err() == nil {
		if err := o.workCycle(cycleCtx); err != nil {
			nlog.Errorf("orchestrator: error detected during work cycle: %v", err)
			nlog.Errorf("orchestrator: will shut down")
			o.setFullStop()
			break
		}

		nlog.Infof("orchestrator: sleeping for %s", o.WorkCycleSleep)
		select {
		case <-time.After(o.WorkCycleSleep):
		case <-ctx.Done():
		case <-cycleCtx.Done():
		}
	}
	nlog.Infof("orchestrator: shutdown complete")
}

// workCycle runs one pass of §4.I's ordered subtasks.
func (o *Orchestrator) workCycle(ctx context.Context) error {
	nlog.Infof("orchestrator: starting work cycle")

	if o.Closer != nil {
		o.Closer.CloseOnSemaphore(ctx, o.Paths)
	}

	if o.ReclaimWork && o.Writer != nil {
		if err := o.Writer.ReclaimAbandonedWork(); err != nil {
			return err
		}
	}

	if o.Writer != nil {
		if err := o.Writer.ArchiveInbox(ctx); err != nil {
			return err
		}
	}

	if o.Purger != nil {
		if err := o.Purger.Clean(ctx); err != nil {
			return err
		}
	}

	nlog.Infof("orchestrator: end of work cycle")
	return nil
}

// RequestShutdown flips the shared shutdown flag and cancels the in-flight
// work cycle's context, per §4.I's "HTTP /shutdown handler" trigger.
func (o *Orchestrator) RequestShutdown() {
	ch := o.requestedCh()
	o.mu.Lock()
	o.shutdown = true
	cancel := o.cancel
	alreadyClosed := o.reqClosed
	o.reqClosed = true
	o.mu.Unlock()
	if !alreadyClosed {
		close(ch)
	}
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) setFullStop() {
	o.mu.Lock()
	o.shutdown = true
	o.fullStop = true
	o.mu.Unlock()
}

func (o *Orchestrator) isShutdown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shutdown
}

// IsFullStop reports whether the loop exited due to a fatal error, for the
// /status handler's "status": "FULL_STOP" field.
func (o *Orchestrator) IsFullStop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fullStop
}

// RegisterHTTP mounts /status, /metrics (delegated to Prober) and /shutdown
// on mux (§6).
func (o *Orchestrator) RegisterHTTP(mux *http.ServeMux) {
	if o.Prober != nil {
		o.Prober.RegisterHTTP(mux, o.IsFullStop)
	}
	mux.HandleFunc("POST /shutdown", func(w http.ResponseWriter, r *http.Request) {
		nlog.Infof("orchestrator: shutdown requested via HTTP")
		o.RequestShutdown()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"shutdown initiated"}`))
	})
}
