package checker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksRunCnt counts executed checks by name.
	ChecksRunCnt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checker_checks_run_total", Help: "The total number of checks executed",
	}, []string{"check"})

	// ChecksFailedCnt counts failed checks by name.
	ChecksFailedCnt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checker_checks_failed_total", Help: "The total number of checks that failed",
	}, []string{"check"})

	// ScrapeDuration observes the duration of one exposition fetch.
	ScrapeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checker_scrape_duration_seconds",
		Help:    "Histogram of exposition fetch duration in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)
