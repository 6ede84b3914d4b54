package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverrun/msgbus/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCollector_MessageDispatchedIncrementsCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	collector.MessageDispatched("order.placed")
	collector.MessageDispatched("order.placed")

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metricFamilies)
}

func TestCollector_HandlerErrorIncrementsCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	collector.HandlerError("order.placed")

	families, err := registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "msgbus_handler_errors_total" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.Equal(t, float64(1), f.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestCollector_StepCompletedIncrementsCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	collector.StepCompleted("order-saga")

	families, err := registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "saga_steps_total" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.Equal(t, float64(1), f.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestCollector_OptimisticConflictIncrementsCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	collector.OptimisticConflict("order-saga")
	collector.OptimisticConflict("order-saga")

	families, err := registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "saga_optimistic_conflicts_total" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.Equal(t, float64(2), f.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestCollector_HandlerDurationObservesSample(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	collector.HandlerDuration("order.placed", 0.25)

	families, err := registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "msgbus_handler_duration_seconds" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.Equal(t, uint64(1), f.Metric[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}
