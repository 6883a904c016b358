package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "research_comb"

var (
	URLRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "url_rejections_total",
		Help:      "URLs refused by the fetch safety gate, by reason.",
	}, []string{"reason"})

	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_requests_total",
		Help:      "Outbound page fetches, by outcome.",
	}, []string{"outcome"})

	DedupeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dedupe_results_total",
		Help:      "Search results classified by the deduplicator.",
	}, []string{"kind"})

	Searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "searches_total",
		Help:      "Executed searches, by mode and final status.",
	}, []string{"mode", "status"})

	Tasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Background tasks executed, by type and status.",
	}, []string{"type", "status"})
)
