// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package statusview

import (
	"net/http"
	"net/http/httptest"
	"testing"

	indexmock "github.com/jade-archive/datamove/internal/index/mock"
)

func TestRegisterHTTPServesStatusAndMetrics(t *testing.T) {
	p := &Prober{Store: indexmock.New(), Metrics: NewMetrics()}
	mux := http.NewServeMux()
	p.RegisterHTTP(mux, func() bool { return false })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d, want 200", rec.Code)
	}
}
