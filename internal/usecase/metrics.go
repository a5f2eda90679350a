package usecase

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSummary represents aggregated prediction insights.
type MetricsSummary struct {
	TotalPredictions   int64   `json:"total_predictions"`
	DogCount           int64   `json:"dog_count"`
	CatCount           int64   `json:"cat_count"`
	DogRatio           float64 `json:"dog_ratio"`
	AverageProbability float64 `json:"average_probability"`
}

// GetMetricsSummary aggregates prediction metrics from persisted records.
func (uc *PredictionUseCase) GetMetricsSummary(ctx context.Context, requestID string) (*MetricsSummary, error) {
	aggregation, err := uc.repo.Aggregate(ctx, requestID)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalPredictions:   aggregation.TotalCount,
		DogCount:           aggregation.DogCount,
		CatCount:           aggregation.TotalCount - aggregation.DogCount,
		AverageProbability: aggregation.AverageProbability,
	}

	if aggregation.TotalCount > 0 {
		summary.DogRatio = float64(aggregation.DogCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}

// Metrics holds the Prometheus collectors updated by the use case.
type Metrics struct {
	predictions      *prometheus.CounterVec
	storeFailures    prometheus.Counter
	cacheHits        prometheus.Counter
	inferenceSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catdog_predictions_total",
			Help: "Successful classifications by label.",
		}, []string{"label"}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catdog_store_failures_total",
			Help: "Classifications that could not be persisted.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catdog_cache_hits_total",
			Help: "Classifications served from the prediction cache.",
		}),
		inferenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catdog_inference_duration_seconds",
			Help:    "Duration of classifier calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.predictions, m.storeFailures, m.cacheHits, m.inferenceSeconds)
	}
	return m
}
