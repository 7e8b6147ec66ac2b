// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package statusview

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the Bundle's gauges as Prometheus collectors, giving the
// teacher's `prometheus/client_golang` dependency (carried for cluster-wide
// metrics elsewhere) a concrete home: the same inbox-depth/oldest-file-age/
// fleet-slot-count numbers §4.D computes for /status, exposed on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	inboxCount       prometheus.Gauge
	inboxAge         prometheus.Gauge
	cacheAge         prometheus.Gauge
	problemFileCount prometheus.Gauge
	diskSlots        *prometheus.GaugeVec
}

// NewMetrics registers and returns a fresh Metrics collector set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		inboxCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jaded", Name: "inbox_file_count", Help: "Number of files currently in the inbox directory.",
		}),
		inboxAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jaded", Name: "inbox_oldest_file_age_seconds", Help: "Age of the oldest file in the inbox directory.",
		}),
		cacheAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jaded", Name: "cache_oldest_file_age_seconds", Help: "Age of the oldest file in the cache directory.",
		}),
		problemFileCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jaded", Name: "problem_file_count", Help: "Number of files currently quarantined.",
		}),
		diskSlots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jaded", Name: "disk_slot_status", Help: "1 if the mount path currently holds the named status, 0 otherwise.",
		}, []string{"path", "status"}),
	}
	reg.MustRegister(m.inboxCount, m.inboxAge, m.cacheAge, m.problemFileCount, m.diskSlots)
	return m
}

// observe updates every collector from a freshly computed Bundle.
func (m *Metrics) observe(bundle Bundle) {
	if m == nil {
		return
	}
	m.problemFileCount.Set(float64(bundle.ProblemFileCount))
	m.cacheAge.Set(float64(bundle.CacheAge))
	if len(bundle.Workers) == 0 {
		return
	}
	m.inboxCount.Set(float64(bundle.Workers[0].InboxCount))
	m.inboxAge.Set(float64(bundle.InboxAge))

	statuses := []DiskStatus{NotMounted, NotUsable, Available, InUse, Finished}
	for path, disk := range bundle.Workers[0].ArchivalDisks {
		for _, s := range statuses {
			v := 0.0
			if disk.Status == s {
				v = 1
			}
			m.diskSlots.WithLabelValues(path, string(s)).Set(v)
		}
	}
}
