package metric

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetric() *MetricSet {
	m := NewMetricSet()
	m.metrics["TEST"] = &mockMetricItem{name: "TEST"}
	return m
}

func TestMetricSet_HasMetrics(t *testing.T) {
	metric := newTestMetric()

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.False(t, metric.HasMetrics("FTEST"), "shouldn't contain label(FTEST)")
}

func TestMetricSet_SetMetrics(t *testing.T) {
	metric := newTestMetric()

	mockItem := &mockMetricItem{name: "TEST"}
	assert.NotNil(t, metric.SetMetrics("TEST", mockItem), "label(TEST)不应该设置成功")
	assert.Nil(t, metric.SetMetrics("TEST1", mockItem), "label(TEST1)应该设置成功")

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.True(t, metric.HasMetrics("TEST1"), "should contain label(TEST1)")
	assert.Nil(t, metric.GetMetrics("TEST2"))
}

func TestMetricSet_GetAllLabels(t *testing.T) {
	metric := newTestMetric()
	require.NoError(t, metric.SetMetrics("A", &mockMetricItem{name: "A"}))

	assert.Equal(t, []string{"A", "TEST"}, metric.GetAllLabels())
	assert.Equal(t, map[string]string{"A": "A", "TEST": "TEST"}, metric.JSONStrings())
}

func TestStats(t *testing.T) {
	stats := NewStats()
	stats.Inc("packets_sent", 2)
	stats.Inc("packets_sent", 3)
	stats.Observe("hops", 4)
	stats.Observe("hops", 6)

	assert.Equal(t, int64(5), stats.Count("packets_sent"))
	assert.Equal(t, int64(0), stats.Count("missing"))
	assert.Equal(t, []string{"hops", "packets_sent"}, stats.Names())

	var decoded map[string]interface{}
	require.NoError(t, jsoniter.UnmarshalFromString(stats.JSONString(), &decoded))
	assert.EqualValues(t, 5, decoded["packets_sent"])
	hops := decoded["hops"].(map[string]interface{})
	assert.EqualValues(t, 2, hops["count"])
	assert.EqualValues(t, 5, hops["mean"])

	// 空的map也要能编码
	assert.Equal(t, "{}", NewStats().JSONString())
}
