package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes the engine's operational metrics on the default
// registry, scraped via /metrics.
type Collector struct {
	checkDuration *prometheus.HistogramVec
	checkUp       *prometheus.GaugeVec
	checksTotal   *prometheus.CounterVec
	issueEvents   *prometheus.CounterVec
}

func NewCollector() *Collector {
	return &Collector{
		checkDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opswatch_check_duration_seconds",
				Help:    "Duration of health checks in seconds",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"check_key", "service"},
		),

		checkUp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "opswatch_check_up",
				Help: "Health of the check: up=1, degraded=0.5, down=0",
			},
			[]string{"check_key", "service"},
		),

		checksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opswatch_checks_total",
				Help: "Total number of checks performed",
			},
			[]string{"check_key", "service", "status"},
		),

		issueEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opswatch_issue_events_total",
				Help: "Issue lifecycle transitions",
			},
			[]string{"event", "severity"},
		),
	}
}

func (c *Collector) RecordCheck(checkKey, service, status string, latencyMs *float64) {
	c.checksTotal.WithLabelValues(checkKey, service, status).Inc()

	var up float64
	switch status {
	case "up":
		up = 1
	case "degraded":
		up = 0.5
	}
	c.checkUp.WithLabelValues(checkKey, service).Set(up)

	if latencyMs != nil {
		c.checkDuration.WithLabelValues(checkKey, service).Observe(*latencyMs / 1000)
	}
}

func (c *Collector) RecordIssueEvent(event, severity string) {
	c.issueEvents.WithLabelValues(event, severity).Inc()
}
