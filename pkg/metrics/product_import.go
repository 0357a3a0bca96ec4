package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProductImportMetrics counts CSV import rows by classification and outcome.
type ProductImportMetrics struct {
	entries *prometheus.CounterVec
	saved   *prometheus.CounterVec
	failed  prometheus.Counter
	reset   prometheus.Counter
}

func NewProductImportMetrics(reg prometheus.Registerer) *ProductImportMetrics {
	if reg == nil {
		return &ProductImportMetrics{}
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofn_product_import_entries_total",
		Help: "Validated product import rows by classification.",
	}, []string{"status"})
	saved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofn_product_import_saved_total",
		Help: "Persisted product import rows by outcome.",
	}, []string{"outcome"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ofn_product_import_save_failures_total",
		Help: "Valid product import rows that failed to persist.",
	})
	reset := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ofn_product_import_reset_total",
		Help: "Variants and overrides zeroed because they were absent from an upload.",
	})
	reg.MustRegister(entries, saved, failed, reset)
	return &ProductImportMetrics{entries: entries, saved: saved, failed: failed, reset: reset}
}

func (m *ProductImportMetrics) ObserveEntry(status string) {
	if m == nil || m.entries == nil {
		return
	}
	m.entries.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *ProductImportMetrics) ObserveSaved(outcome string) {
	if m == nil || m.saved == nil {
		return
	}
	m.saved.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ProductImportMetrics) IncFailure() {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.Inc()
}

func (m *ProductImportMetrics) AddReset(n int64) {
	if m == nil || m.reset == nil || n <= 0 {
		return
	}
	m.reset.Add(float64(n))
}
