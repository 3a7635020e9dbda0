package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/dflow/internal/domain"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"warning", slog.LevelWarn},
		{" debug ", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := LogLevel(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "", slog.LevelInfo).With("service", "dflow-api").Info("hello", "job_id", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("default format must be JSON: %v (%s)", err, buf.String())
	}
	if rec["service"] != "dflow-api" || rec["msg"] != "hello" {
		t.Errorf("unexpected record: %v", rec)
	}

	buf.Reset()
	logger := NewLogger(&buf, "TEXT", slog.LevelWarn)
	logger.Info("skipped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "skipped") || !strings.Contains(out, "msg=kept") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}

	logger := WithJobID(slog.Default(), 7)
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
}

// --- Metrics Tests ---

// gatherValue возвращает значение метрики с заданными метками.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_Emit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctx := context.Background()

	m.Emit(ctx, domain.Event{Type: domain.EventProcessStarted, ProcessCode: "rename_files"})
	m.Emit(ctx, domain.Event{Type: domain.EventProcessStarted, ProcessCode: "rename_files"})
	m.Emit(ctx, domain.Event{Type: domain.EventProcessProgress, ProcessCode: "rename_files"})
	m.Emit(ctx, domain.Event{Type: domain.EventProcessDone, ProcessCode: "rename_files"})

	if v := gatherValue(t, reg, "dflow_running_processes", map[string]string{"process": "rename_files"}); v != 1 {
		t.Errorf("expected 1 running, got %v", v)
	}
	if v := gatherValue(t, reg, "dflow_process_transitions_total",
		map[string]string{"process": "rename_files", "state": "STARTED"}); v != 2 {
		t.Errorf("expected 2 STARTED transitions, got %v", v)
	}
	if v := gatherValue(t, reg, "dflow_progress_updates_total", map[string]string{"process": "rename_files"}); v != 1 {
		t.Errorf("expected 1 progress update, got %v", v)
	}
}

func TestMetrics_SetRunning(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetRunning(map[string]int{"copy_files": 3, "scan_job": 1})
	if v := gatherValue(t, reg, "dflow_running_processes", map[string]string{"process": "copy_files"}); v != 3 {
		t.Errorf("expected 3, got %v", v)
	}

	// процесс исчез из хранилища — gauge обнуляется
	m.SetRunning(map[string]int{"scan_job": 1})
	if v := gatherValue(t, reg, "dflow_running_processes", map[string]string{"process": "copy_files"}); v != 0 {
		t.Errorf("expected 0, got %v", v)
	}
}

func TestAdmissionResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultStarted},
		{fmt.Errorf("%w: x", domain.ErrTooManyRunning), ResultTooMany},
		{domain.ErrNoJobAvailable, ResultNoJob},
		{domain.ErrUnknownProcess, ResultUnknown},
		{domain.ErrInvalidJobState, ResultInvalidState},
		{domain.ErrJobNotFound, ResultJobNotFound},
		{errors.New("boom"), ResultInternalError},
	}

	for _, tt := range tests {
		if got := AdmissionResult(tt.err); got != tt.want {
			t.Errorf("%v: expected %s, got %s", tt.err, tt.want, got)
		}
	}

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveAdmission("scan_job", nil)
	if v := gatherValue(t, reg, "dflow_admissions_total",
		map[string]string{"process": "scan_job", "result": ResultStarted}); v != 1 {
		t.Errorf("expected 1 admission, got %v", v)
	}
}
