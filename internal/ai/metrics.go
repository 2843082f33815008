package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pricing used for cost estimation when the provider does not report it.
const (
	pricePerMillionInputTokensUSD  = 0.1
	pricePerMillionOutputTokensUSD = 0.4
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comic_server_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"provider", "model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_server_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_server_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"provider", "model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_server_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"provider", "model"},
	)
	aiEstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comic_server_ai_estimated_cost_usd_total",
			Help: "Estimated total cost of AI requests in USD.",
		},
		[]string{"provider", "model"},
	)
)

// calculateCost estimates the request cost from token counts.
func calculateCost(promptTokens, completionTokens int) float64 {
	inputCost := float64(promptTokens) * pricePerMillionInputTokensUSD / 1_000_000.0
	outputCost := float64(completionTokens) * pricePerMillionOutputTokensUSD / 1_000_000.0
	return inputCost + outputCost
}

func recordRequest(provider, model, status string, seconds float64) {
	aiRequestsTotal.With(prometheus.Labels{"provider": provider, "model": model, "status": status}).Inc()
	if status == "success" {
		aiRequestDuration.With(prometheus.Labels{"provider": provider, "model": model}).Observe(seconds)
	}
}

func recordUsage(provider, model string, usage UsageInfo) {
	if usage.TotalTokens == 0 {
		return
	}
	aiPromptTokens.With(prometheus.Labels{"provider": provider, "model": model}).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.With(prometheus.Labels{"provider": provider, "model": model}).Observe(float64(usage.CompletionTokens))
	if usage.EstimatedCostUSD > 0 {
		aiEstimatedCostUSD.With(prometheus.Labels{"provider": provider, "model": model}).Add(usage.EstimatedCostUSD)
	}
}
