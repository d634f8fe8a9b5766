package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vision"

// Metrics: метрики Prometheus для распознавания, сборки индексов и подготовки датасетов.
// Все метрики регистрируются в переданном реестре, поэтому в тестах используется отдельный реестр.
type Metrics struct {
	detectDuration    *prometheus.HistogramVec
	detectionsTotal   *prometheus.CounterVec
	embedDuration     prometheus.Histogram
	matchScore        *prometheus.HistogramVec
	matchesTotal      *prometheus.CounterVec
	recognizeDuration *prometheus.HistogramVec
	recognizeTotal    *prometheus.CounterVec
	predictionsTotal  *prometheus.CounterVec
	buildDuration     *prometheus.HistogramVec
	buildsTotal       *prometheus.CounterVec
	indexEmbeddings   *prometheus.GaugeVec
	skippedImages     *prometheus.CounterVec
	organizeDuration  prometheus.Histogram
	organizeTotal     *prometheus.CounterVec
	organizeProducts  prometheus.Counter
	organizeImages    prometheus.Counter
	organizeFailures  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		detectDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_duration_seconds",
			Help:      "Duration of detector calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"seller"}),
		detectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Candidate objects kept after detection filtering",
		}, []string{"seller"}),
		embedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embed_duration_seconds",
			Help:      "Duration of image embedding calls",
			Buckets:   prometheus.DefBuckets,
		}),
		matchScore: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_similarity",
			Help:      "Cosine similarity of the nearest catalog entry",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"seller"}),
		matchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Nearest neighbour lookups by outcome",
		}, []string{"seller", "result"}),
		recognizeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognize_duration_seconds",
			Help:      "End-to-end recognition latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"seller"}),
		recognizeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognize_requests_total",
			Help:      "Recognition requests by status",
		}, []string{"seller", "status"}),
		predictionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Products returned by recognition",
		}, []string{"seller"}),
		buildDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Duration of index builds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"seller"}),
		buildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Index builds by status",
		}, []string{"seller", "status"}),
		indexEmbeddings: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_embeddings",
			Help:      "Embeddings in the last successfully built index",
		}, []string{"seller"}),
		skippedImages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_skipped_images_total",
			Help:      "Dataset images skipped during index builds",
		}, []string{"seller"}),
		organizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "organize_duration_seconds",
			Help:      "Duration of dataset organization runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		organizeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "organize_runs_total",
			Help:      "Dataset organization runs by status",
		}, []string{"status"}),
		organizeProducts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "organize_products_total",
			Help:      "Products written to the dataset",
		}),
		organizeImages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "organize_images_total",
			Help:      "Images written to the dataset",
		}),
		organizeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "organize_failures_total",
			Help:      "Images that could not be downloaded or decoded",
		}),
	}
}

func (m *Metrics) ObserveDetect(tenant string, d time.Duration, detections int) {
	m.detectDuration.WithLabelValues(tenant).Observe(d.Seconds())
	m.detectionsTotal.WithLabelValues(tenant).Add(float64(detections))
}

func (m *Metrics) ObserveEmbed(d time.Duration) {
	m.embedDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveMatch(tenant string, score float32, matched bool) {
	m.matchScore.WithLabelValues(tenant).Observe(float64(score))
	m.matchesTotal.WithLabelValues(tenant, matchResult(matched)).Inc()
}

func (m *Metrics) ObserveRecognize(tenant string, d time.Duration, predictions int, err error) {
	m.recognizeDuration.WithLabelValues(tenant).Observe(d.Seconds())
	m.recognizeTotal.WithLabelValues(tenant, status(err)).Inc()
	m.predictionsTotal.WithLabelValues(tenant).Add(float64(predictions))
}

func (m *Metrics) ObserveBuild(tenant string, d time.Duration, embeddings, skipped int, err error) {
	m.buildDuration.WithLabelValues(tenant).Observe(d.Seconds())
	m.buildsTotal.WithLabelValues(tenant, status(err)).Inc()
	m.skippedImages.WithLabelValues(tenant).Add(float64(skipped))
	if err == nil {
		m.indexEmbeddings.WithLabelValues(tenant).Set(float64(embeddings))
	}
}

func (m *Metrics) ObserveOrganize(d time.Duration, products, images, failures int, err error) {
	m.organizeDuration.Observe(d.Seconds())
	m.organizeTotal.WithLabelValues(status(err)).Inc()
	m.organizeProducts.Add(float64(products))
	m.organizeImages.Add(float64(images))
	m.organizeFailures.Add(float64(failures))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func matchResult(matched bool) string {
	if matched {
		return "matched"
	}
	return "below_threshold"
}
