// Package metrics exports reconciliation counters in the Prometheus format
package metrics

import (
	"context"
	"net/http"

	"cashflow-reconciler/internal/api"
	"cashflow-reconciler/internal/reconciler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reconciler"

// Recorder owns the collectors and the registry they are exposed from
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	statements  prometheus.Counter
	reconciled  prometheus.Counter
	alerts      prometheus.Counter
	runDuration prometheus.Histogram
	imported    *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Company reconciliation runs by outcome.",
		}, []string{"result"}),
		statements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_processed_total",
			Help:      "Statement entries considered by reconciliation runs.",
		}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliation records created.",
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Financial alerts created.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of one company reconciliation run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		imported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_rows_total",
			Help:      "Statement file rows by import outcome.",
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(r.runs, r.statements, r.reconciled, r.alerts, r.runDuration, r.imported)
	return r
}

// Handler serves the registry
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one company run. A nil result counts as a failure.
func (r *Recorder) ObserveRun(result *reconciler.RunResult) {
	if result == nil || !result.Success {
		r.runs.WithLabelValues("failure").Inc()
	} else {
		r.runs.WithLabelValues("success").Inc()
	}
	if result == nil {
		return
	}

	r.statements.Add(float64(result.StatementsProcessed))
	r.reconciled.Add(float64(result.Reconciled))
	r.alerts.Add(float64(result.AlertsCreated))
	if result.Duration > 0 {
		r.runDuration.Observe(result.Duration.Seconds())
	}
}

// ObserveImport records the row counts of one file import
func (r *Recorder) ObserveImport(result *reconciler.ImportResult) {
	if result == nil {
		return
	}
	r.imported.WithLabelValues("imported").Add(float64(result.Imported))
	r.imported.WithLabelValues("duplicate").Add(float64(result.Duplicates))
	r.imported.WithLabelValues("failed").Add(float64(result.Errors))
}

// InstrumentedService records metrics for the operations of the wrapped service
type InstrumentedService struct {
	api.Service
	rec *Recorder
}

// Instrument wraps svc so that its runs and imports are recorded by rec
func Instrument(svc api.Service, rec *Recorder) *InstrumentedService {
	return &InstrumentedService{Service: svc, rec: rec}
}

func (s *InstrumentedService) ImportStatementFile(ctx context.Context, req reconciler.ImportRequest) (*reconciler.ImportResult, error) {
	result, err := s.Service.ImportStatementFile(ctx, req)
	s.rec.ObserveImport(result)
	return result, err
}

func (s *InstrumentedService) Reconcile(ctx context.Context, companyID string) (*reconciler.RunResult, error) {
	result, err := s.Service.Reconcile(ctx, companyID)
	if err != nil && result != nil {
		failed := *result
		failed.Success = false
		s.rec.ObserveRun(&failed)
	} else {
		s.rec.ObserveRun(result)
	}
	return result, err
}

func (s *InstrumentedService) ReconcileAll(ctx context.Context) ([]*reconciler.RunResult, error) {
	results, err := s.Service.ReconcileAll(ctx)
	for _, result := range results {
		s.rec.ObserveRun(result)
	}
	return results, err
}
