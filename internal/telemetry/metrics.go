package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/dflow/internal/domain"
)

// Результаты admission для метки result.
const (
	ResultStarted       = "started"
	ResultTooMany       = "too_many_running"
	ResultNoJob         = "no_job"
	ResultUnknown       = "unknown_process"
	ResultInvalidState  = "invalid_job_state"
	ResultJobNotFound   = "job_not_found"
	ResultInternalError = "error"
)

// Metrics — Prometheus метрики dflow.
//
// Реализует domain.EventSink: переходы и прогресс считаются по событиям,
// gauge running_processes поддерживается событиями и периодически
// выравнивается по хранилищу (SetRunning).
type Metrics struct {
	admissions  *prometheus.CounterVec
	running     *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	progress    *prometheus.CounterVec

	mu    sync.Mutex
	known map[string]bool
}

// NewMetrics регистрирует метрики в reg.
// nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dflow_admissions_total",
			Help: "Admission decisions by process and result",
		}, []string{"process", "result"}),
		running: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dflow_running_processes",
			Help: "STARTED process entries by process",
		}, []string{"process"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dflow_process_transitions_total",
			Help: "Process entry transitions by process and target state",
		}, []string{"process", "state"}),
		progress: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dflow_progress_updates_total",
			Help: "Progress reports by process",
		}, []string{"process"}),
		known: make(map[string]bool),
	}
}

// ObserveAdmission учитывает результат RequestProcess/InitiateProcess.
func (m *Metrics) ObserveAdmission(process string, err error) {
	m.admissions.WithLabelValues(process, AdmissionResult(err)).Inc()
}

// AdmissionResult переводит ошибку admission в значение метки result.
func AdmissionResult(err error) string {
	switch {
	case err == nil:
		return ResultStarted
	case errors.Is(err, domain.ErrTooManyRunning):
		return ResultTooMany
	case errors.Is(err, domain.ErrNoJobAvailable):
		return ResultNoJob
	case errors.Is(err, domain.ErrUnknownProcess):
		return ResultUnknown
	case errors.Is(err, domain.ErrInvalidJobState):
		return ResultInvalidState
	case errors.Is(err, domain.ErrJobNotFound):
		return ResultJobNotFound
	default:
		return ResultInternalError
	}
}

// Emit реализует domain.EventSink.
func (m *Metrics) Emit(_ context.Context, ev domain.Event) {
	switch ev.Type {
	case domain.EventProcessStarted:
		m.transitions.WithLabelValues(ev.ProcessCode, string(domain.StateStarted)).Inc()
		m.running.WithLabelValues(ev.ProcessCode).Inc()
		m.remember(ev.ProcessCode)
	case domain.EventProcessDone:
		m.transitions.WithLabelValues(ev.ProcessCode, string(domain.StateDone)).Inc()
		m.running.WithLabelValues(ev.ProcessCode).Dec()
	case domain.EventProcessFailed:
		m.transitions.WithLabelValues(ev.ProcessCode, string(domain.StateFailed)).Inc()
		m.running.WithLabelValues(ev.ProcessCode).Dec()
	case domain.EventProcessProgress:
		m.progress.WithLabelValues(ev.ProcessCode).Inc()
	}
}

// SetRunning выставляет gauge по фактическим данным хранилища.
// Процессы, которых нет в counts, обнуляются.
func (m *Metrics) SetRunning(counts map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for code := range m.known {
		if _, ok := counts[code]; !ok {
			m.running.WithLabelValues(code).Set(0)
		}
	}
	for code, n := range counts {
		m.running.WithLabelValues(code).Set(float64(n))
		m.known[code] = true
	}
}

func (m *Metrics) remember(code string) {
	m.mu.Lock()
	m.known[code] = true
	m.mu.Unlock()
}
