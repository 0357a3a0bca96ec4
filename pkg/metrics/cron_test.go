package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "order-cycle-transitions"
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job, at)
	m.IncSuccess(job, at)
	m.IncFailure(job)
	m.AddProcessed(job, 3)
	m.AddProcessed(job, 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := metricValue(mfs, "ofn_cron_job_runs_total", map[string]string{"job": job, "result": "success"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	got, err = metricValue(mfs, "ofn_cron_job_runs_total", map[string]string{"job": job, "result": "failure"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = metricValue(mfs, "ofn_cron_job_processed_total", map[string]string{"job": job})
	require.NoError(t, err)
	assert.Equal(t, float64(3), got)

	got, err = metricValue(mfs, "ofn_cron_job_last_success_timestamp_seconds", map[string]string{"job": job})
	require.NoError(t, err)
	assert.Equal(t, float64(at.Unix()), got)

	got, err = metricValue(mfs, "ofn_cron_job_duration_seconds", map[string]string{"job": job})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, 0.0001)
}

func TestNilRegistererDropsObservations(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.IncSuccess("x", time.Now())
	m.IncFailure("")
	m.AddProcessed("x", 1)

	var nilMetrics *ProductImportMetrics
	nilMetrics.ObserveEntry("invalid")
	NewProductImportMetrics(nil).AddReset(4)
}

func TestProductImportMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProductImportMetrics(reg)
	m.ObserveEntry("new_product")
	m.ObserveEntry("new_product")
	m.ObserveSaved("")
	m.AddReset(5)
	m.AddReset(-1)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := metricValue(mfs, "ofn_product_import_entries_total", map[string]string{"status": "new_product"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	got, err = metricValue(mfs, "ofn_product_import_saved_total", map[string]string{"outcome": "unknown"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = metricValue(mfs, "ofn_product_import_reset_total", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(5), got)
}

// metricValue returns a counter or gauge value, or a histogram's sample sum.
func metricValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if !matchesLabels(metric.GetLabel(), labels) {
			continue
		}
		switch {
		case metric.Counter != nil:
			return metric.GetCounter().GetValue(), nil
		case metric.Gauge != nil:
			return metric.GetGauge().GetValue(), nil
		case metric.Histogram != nil:
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for name, value := range want {
		found := false
		for _, p := range pairs {
			if p.GetName() == name && p.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
