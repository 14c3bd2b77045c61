package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_request_duration_seconds",
			Help:    "Assistant request duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"capability"},
	)

	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_requests_total",
			Help: "Total assistant requests by outcome",
		},
		[]string{"status"},
	)

	QuotaDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_quota_denied_total",
			Help: "Requests denied by the quota ledger",
		},
	)

	GenerationFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_generation_fallbacks_total",
			Help: "Generation failures recovered with the source-list fallback",
		},
	)

	InsufficientContext = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_insufficient_context_total",
			Help: "Requests terminated by the no-evidence hard stop",
		},
	)

	RetrievedSources = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_reranked_sources",
			Help:    "Reranked source count per request",
			Buckets: []float64{0, 1, 2, 4, 8, 12},
		},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_llm_tokens_total",
			Help: "LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_cache_hits_total",
			Help: "Cache hits by cache type",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_cache_misses_total",
			Help: "Cache misses by cache type",
		},
		[]string{"cache_type"},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_documents_ingested_total",
			Help: "Support documents ingested into the corpus",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(RequestTotal)
	prometheus.MustRegister(QuotaDenied)
	prometheus.MustRegister(GenerationFallbacks)
	prometheus.MustRegister(InsufficientContext)
	prometheus.MustRegister(RetrievedSources)
	prometheus.MustRegister(LLMTokens)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsIngested)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
