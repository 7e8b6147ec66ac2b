// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package orchestrator_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/jade-archive/datamove/internal/cachepurge"
	indexmock "github.com/jade-archive/datamove/internal/index/mock"
	"github.com/jade-archive/datamove/internal/orchestrator"
)

var _ = Describe("Orchestrator", func() {
	Describe("RequestShutdown", func() {
		It("stops the work cycle loop after the in-flight cycle completes", func() {
			o := &orchestrator.Orchestrator{WorkCycleSleep: time.Hour}

			done := make(chan struct{})
			go func() {
				o.Run(context.Background())
				close(done)
			}()

			Eventually(func() bool {
				o.RequestShutdown()
				select {
				case <-done:
					return true
				default:
					return false
				}
			}, "2s", "10ms").Should(BeTrue())
		})
	})

	Describe("a fatal error during the work cycle", func() {
		It("forces FULL_STOP and ends the loop without waiting out the sleep", func() {
			cacheDir, err := os.MkdirTemp("", "jaded-cache-")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(cacheDir)

			uuid := "11111111-1111-1111-1111-111111111111"
			f, err := os.Create(filepath.Join(cacheDir, "ukey_"+uuid+"_x.dat"))
			Expect(err).NotTo(HaveOccurred())
			f.Close()

			purger := &cachepurge.Purger{
				Store:    indexmock.New(),
				CacheDir: cacheDir,
				// No archives configured: requiredCopies() is fatal (§4.E step 4).
			}

			o := &orchestrator.Orchestrator{
				Purger:         purger,
				WorkCycleSleep: time.Hour,
			}

			done := make(chan struct{})
			go func() {
				o.Run(context.Background())
				close(done)
			}()

			Eventually(done, "2s", "10ms").Should(BeClosed())
			Expect(o.IsFullStop()).To(BeTrue())

			// FULL_STOP halts the loop but is not an operator shutdown
			// request: the process (and its status endpoint) stays up until
			// one arrives.
			Consistently(o.ShutdownRequested(), "100ms", "10ms").ShouldNot(BeClosed())
			o.RequestShutdown()
			Eventually(o.ShutdownRequested(), "1s", "10ms").Should(BeClosed())
		})
	})

	Describe("RegisterHTTP", func() {
		It("mounts a POST /shutdown handler that requests shutdown", func() {
			o := &orchestrator.Orchestrator{WorkCycleSleep: time.Hour}
			mux := http.NewServeMux()
			o.RegisterHTTP(mux)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
			mux.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusAccepted))

			done := make(chan struct{})
			go func() {
				o.Run(context.Background())
				close(done)
			}()
			Eventually(done, "2s", "10ms").Should(BeClosed())
		})
	})
})
