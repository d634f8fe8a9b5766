package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Recognize(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRecognize("seller_1", 20*time.Millisecond, 2, nil)
	m.ObserveRecognize("seller_1", 10*time.Millisecond, 0, errors.New("boom"))
	m.ObserveMatch("seller_1", 0.95, true)
	m.ObserveMatch("seller_1", 0.40, false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.recognizeTotal.WithLabelValues("seller_1", "ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.recognizeTotal.WithLabelValues("seller_1", "error")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.predictionsTotal.WithLabelValues("seller_1")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.matchesTotal.WithLabelValues("seller_1", "matched")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.matchesTotal.WithLabelValues("seller_1", "below_threshold")), 1e-9)
}

func TestMetrics_Build(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveBuild("seller_2", time.Second, 3, 1, nil)
	m.ObserveBuild("seller_2", time.Second, 0, 4, errors.New("no data"))

	assert.InDelta(t, 3, testutil.ToFloat64(m.indexEmbeddings.WithLabelValues("seller_2")), 1e-9)
	assert.InDelta(t, 5, testutil.ToFloat64(m.skippedImages.WithLabelValues("seller_2")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.buildsTotal.WithLabelValues("seller_2", "error")), 1e-9)
}

func TestMetrics_Organize(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOrganize(time.Minute, 4, 10, 2, nil)

	assert.InDelta(t, 4, testutil.ToFloat64(m.organizeProducts), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(m.organizeImages), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.organizeFailures), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.organizeTotal.WithLabelValues("ok")), 1e-9)
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
