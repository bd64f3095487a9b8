// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide registry served at /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Ingestions counts finished ingestions by final status (complete, failed).
	Ingestions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrag",
		Name:      "ingestions_total",
		Help:      "Document ingestions by final status.",
	}, []string{"status"})

	ChunksStored = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "docrag",
		Name:      "chunks_stored_total",
		Help:      "Chunks committed to the vector store.",
	})

	EmbeddingFallbacks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "docrag",
		Name:      "embedding_fallbacks_total",
		Help:      "Texts embedded with the deterministic fallback after a provider failure.",
	})

	Queries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "docrag",
		Name:      "queries_total",
		Help:      "Similarity queries served.",
	})

	ArbiterDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrag",
		Name:      "arbiter_decisions_total",
		Help:      "Response decisions by classification.",
	}, []string{"classification"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
