// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package statusview

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jade-archive/datamove/internal/nlog"
)

// FullStopFunc reports whether the daemon has entered FULL_STOP, so the
// /status handler can reflect it without the prober needing to know about
// the orchestrator's shutdown flag.
type FullStopFunc func() bool

// RegisterHTTP mounts GET /status and GET /metrics on mux, per §6's external
// interface list. Grounded on `ais/test/target_mock.go`'s
// http.NewServeMux()-plus-handler-func shape.
func (p *Prober) RegisterHTTP(mux *http.ServeMux, fullStop FullStopFunc) {
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		fs := false
		if fullStop != nil {
			fs = fullStop()
		}
		bundle := p.Snapshot(r.Context(), fs)
		raw, err := jsoniter.MarshalIndent(bundle, "", "  ")
		if err != nil {
			nlog.Errorf("statusview: failed to marshal status bundle: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	})

	if p.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(p.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}
