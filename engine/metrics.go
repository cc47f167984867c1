package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("spotlight")

var candidatesSeen = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spotlight_candidates_seen",
	Help: "Number of candidate posts fetched, by discovery source",
}, []string{"source"})

var candidatesAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spotlight_candidates_accepted",
	Help: "Number of candidates accepted, by classifier rule",
}, []string{"rule"})

var candidatesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spotlight_candidates_rejected",
	Help: "Number of candidates rejected, by classifier rule",
}, []string{"rule"})

var publishesSucceeded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spotlight_publishes_succeeded",
	Help: "Number of spotlight posts published",
})

var publishesFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spotlight_publishes_failed",
	Help: "Number of failed publish attempts",
})

var publishesDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spotlight_publishes_dead_lettered",
	Help: "Number of queue entries abandoned after repeated publish failures",
})

var followsIssued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spotlight_follows_issued",
	Help: "Number of follow actions issued",
})

var optOutsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spotlight_opt_outs_received",
	Help: "Number of opt-out requests processed",
})

var ticksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spotlight_ticks_skipped",
	Help: "Number of timer ticks skipped because the previous pass was still running",
}, []string{"loop"})

var webhookFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "spotlight_webhook_failures",
	Help: "Number of failed webhook bridge deliveries",
})

// RunMetrics serves the prometheus scrape endpoint. Blocks.
func (e *Engine) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}
