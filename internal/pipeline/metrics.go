package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invocation outcomes
const (
	outcomeSuccess      = "success"
	outcomeSkipped      = "skipped"
	outcomeDropped      = "dropped"
	outcomeDeadLettered = "dead_lettered"
	outcomeFailed       = "failed"
)

var (
	invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "image_resizer_invocations_total",
		Help: "Number of processed blobs by outcome.",
	}, []string{"outcome"})

	normalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_resizer_normalize_duration_seconds",
		Help:    "Time spent decoding, resizing and encoding a blob.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 10},
	})

	sourceBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_resizer_source_bytes",
		Help:    "Size of the source blobs.",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_resizer_cache_hits_total",
		Help: "Number of blobs whose output was served from the cache.",
	})
)
