package cannon

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    trainCounter     prometheus.Counter
//	    inferenceLatency prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordTrain(stars, pixels int, duration time.Duration, err error) {
//	    p.trainCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordTrain is called once per training run.
	// stars and pixels describe the training-set shape, duration the total
	// wall time; err is nil if the run produced a model.
	RecordTrain(stars, pixels int, duration time.Duration, err error)

	// RecordPixelFit is called after each final per-pixel fit.
	RecordPixelFit(duration time.Duration, converged bool)

	// RecordCVEvaluation is called after each (pixel, λ, fold) evaluation.
	RecordCVEvaluation(duration time.Duration, err error)

	// RecordInference is called after each label-inference call.
	// iterations is the number of accepted steps, err is nil on convergence.
	RecordInference(iterations int, duration time.Duration, err error)

	// RecordSnapshotSave is called after a model snapshot write.
	RecordSnapshotSave(bytes int64, duration time.Duration, err error)

	// RecordSnapshotLoad is called after a model snapshot read.
	RecordSnapshotLoad(bytes int64, duration time.Duration, err error)
}

// NoopMetrics is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetrics struct{}

func (NoopMetrics) RecordTrain(int, int, time.Duration, error)     {}
func (NoopMetrics) RecordPixelFit(time.Duration, bool)             {}
func (NoopMetrics) RecordCVEvaluation(time.Duration, error)        {}
func (NoopMetrics) RecordInference(int, time.Duration, error)      {}
func (NoopMetrics) RecordSnapshotSave(int64, time.Duration, error) {}
func (NoopMetrics) RecordSnapshotLoad(int64, time.Duration, error) {}

// BasicMetrics provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetrics struct {
	TrainCount          atomic.Int64
	TrainErrors         atomic.Int64
	TrainTotalNanos     atomic.Int64
	PixelFitCount       atomic.Int64
	PixelFitUnconverged atomic.Int64
	CVEvaluationCount   atomic.Int64
	CVEvaluationErrors  atomic.Int64
	InferenceCount      atomic.Int64
	InferenceErrors     atomic.Int64
	InferenceIterations atomic.Int64
	InferenceTotalNanos atomic.Int64
	SnapshotSaveCount   atomic.Int64
	SnapshotSaveErrors  atomic.Int64
	SnapshotSaveBytes   atomic.Int64
	SnapshotLoadCount   atomic.Int64
	SnapshotLoadErrors  atomic.Int64
	SnapshotLoadBytes   atomic.Int64
}

// RecordTrain implements MetricsCollector.
func (b *BasicMetrics) RecordTrain(stars, pixels int, duration time.Duration, err error) {
	b.TrainCount.Add(1)
	b.TrainTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.TrainErrors.Add(1)
	}
}

// RecordPixelFit implements MetricsCollector.
func (b *BasicMetrics) RecordPixelFit(duration time.Duration, converged bool) {
	b.PixelFitCount.Add(1)
	if !converged {
		b.PixelFitUnconverged.Add(1)
	}
}

// RecordCVEvaluation implements MetricsCollector.
func (b *BasicMetrics) RecordCVEvaluation(duration time.Duration, err error) {
	b.CVEvaluationCount.Add(1)
	if err != nil {
		b.CVEvaluationErrors.Add(1)
	}
}

// RecordInference implements MetricsCollector.
func (b *BasicMetrics) RecordInference(iterations int, duration time.Duration, err error) {
	b.InferenceCount.Add(1)
	b.InferenceIterations.Add(int64(iterations))
	b.InferenceTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InferenceErrors.Add(1)
	}
}

// RecordSnapshotSave implements MetricsCollector.
func (b *BasicMetrics) RecordSnapshotSave(bytes int64, duration time.Duration, err error) {
	b.SnapshotSaveCount.Add(1)
	b.SnapshotSaveBytes.Add(bytes)
	if err != nil {
		b.SnapshotSaveErrors.Add(1)
	}
}

// RecordSnapshotLoad implements MetricsCollector.
func (b *BasicMetrics) RecordSnapshotLoad(bytes int64, duration time.Duration, err error) {
	b.SnapshotLoadCount.Add(1)
	b.SnapshotLoadBytes.Add(bytes)
	if err != nil {
		b.SnapshotLoadErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetrics) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		TrainCount:          b.TrainCount.Load(),
		TrainErrors:         b.TrainErrors.Load(),
		TrainAvgNanos:       b.getAvgTrainNanos(),
		PixelFitCount:       b.PixelFitCount.Load(),
		PixelFitUnconverged: b.PixelFitUnconverged.Load(),
		CVEvaluationCount:   b.CVEvaluationCount.Load(),
		CVEvaluationErrors:  b.CVEvaluationErrors.Load(),
		InferenceCount:      b.InferenceCount.Load(),
		InferenceErrors:     b.InferenceErrors.Load(),
		InferenceAvgIters:   b.getAvgInferenceIters(),
		SnapshotSaveCount:   b.SnapshotSaveCount.Load(),
		SnapshotSaveErrors:  b.SnapshotSaveErrors.Load(),
		SnapshotSaveBytes:   b.SnapshotSaveBytes.Load(),
		SnapshotLoadCount:   b.SnapshotLoadCount.Load(),
		SnapshotLoadErrors:  b.SnapshotLoadErrors.Load(),
		SnapshotLoadBytes:   b.SnapshotLoadBytes.Load(),
	}
}

func (b *BasicMetrics) getAvgTrainNanos() int64 {
	count := b.TrainCount.Load()
	if count == 0 {
		return 0
	}
	return b.TrainTotalNanos.Load() / count
}

func (b *BasicMetrics) getAvgInferenceIters() int64 {
	count := b.InferenceCount.Load()
	if count == 0 {
		return 0
	}
	return b.InferenceIterations.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetrics state.
type BasicMetricsStats struct {
	TrainCount          int64
	TrainErrors         int64
	TrainAvgNanos       int64
	PixelFitCount       int64
	PixelFitUnconverged int64
	CVEvaluationCount   int64
	CVEvaluationErrors  int64
	InferenceCount      int64
	InferenceErrors     int64
	InferenceAvgIters   int64
	SnapshotSaveCount   int64
	SnapshotSaveErrors  int64
	SnapshotSaveBytes   int64
	SnapshotLoadCount   int64
	SnapshotLoadErrors  int64
	SnapshotLoadBytes   int64
}
