// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestJobsTotal counts finished ingest jobs by result and reason.
	IngestJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "striploop_ingest_jobs_total",
		Help: "Total number of finished ingest jobs, by result (done/failed) and reason.",
	}, []string{"result", "reason"})

	// IngestQueueDepth tracks jobs waiting or in flight.
	IngestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "striploop_ingest_queue_depth",
		Help: "Current number of queued or in-flight ingest jobs.",
	})

	// IngestTransformSeconds observes transform wall time.
	IngestTransformSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "striploop_ingest_transform_seconds",
		Help:    "Wall time of the ingest transform step.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
)
