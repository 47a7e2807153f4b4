package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "pmeyes"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	stageDuration   *prom.HistogramVec
	stageResults    *prom.CounterVec
	runDuration     *prom.HistogramVec
	runOutcome      *prom.CounterVec
	articlesEmitted prom.Gauge
	assetsCopied    prom.Counter
	imageResults    *prom.CounterVec
	imageBytesSaved prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.runDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total command run duration",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"kind", "outcome"})
		pr.articlesEmitted = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "articles_emitted",
			Help:      "Articles written by the last regeneration",
		})
		pr.assetsCopied = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "assets_copied_total",
			Help:      "Image references resolved and copied to the asset root",
		})
		pr.imageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "image_results_total",
			Help:      "Image compressor decisions by result",
		}, []string{"result"})
		pr.imageBytesSaved = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "image_bytes_saved_total",
			Help:      "Bytes saved by image recompression",
		})
		reg.MustRegister(pr.stageDuration, pr.stageResults, pr.runDuration, pr.runOutcome,
			pr.articlesEmitted, pr.assetsCopied, pr.imageResults, pr.imageBytesSaved)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(kind string, d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(kind string, outcome RunOutcome) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(kind, string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetArticlesEmitted(n int) {
	if p == nil || p.articlesEmitted == nil {
		return
	}
	p.articlesEmitted.Set(float64(n))
}

func (p *PrometheusRecorder) AddAssetsCopied(n int) {
	if p == nil || p.assetsCopied == nil || n <= 0 {
		return
	}
	p.assetsCopied.Add(float64(n))
}

func (p *PrometheusRecorder) IncImageResult(result ImageResult) {
	if p == nil || p.imageResults == nil {
		return
	}
	p.imageResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) AddImageBytesSaved(n int64) {
	if p == nil || p.imageBytesSaved == nil || n <= 0 {
		return
	}
	p.imageBytesSaved.Add(float64(n))
}
