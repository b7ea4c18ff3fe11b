package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bufferedMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chronicle_cache_buffered_messages",
		Help: "Number of messages waiting in the write buffer",
	})

	admittedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronicle_cache_admitted_total",
		Help: "Total number of messages admitted into the cache",
	})

	flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronicle_cache_flushes_total",
		Help: "Total number of batch flushes by result",
	}, []string{"result"})

	flushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chronicle_cache_flush_duration_seconds",
		Help:    "Time spent writing a batch to the database",
		Buckets: prometheus.DefBuckets,
	})

	skippedAttachments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronicle_cache_attachments_skipped_total",
		Help: "Attachments not retained by reason",
	}, []string{"reason"})

	mirrorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronicle_cache_mirror_errors_total",
		Help: "Failed side-store operations by action",
	}, []string{"action"})
)
