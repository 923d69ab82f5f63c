package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActionsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_actions_total",
		Help: "Total actions executed, by kind",
	}, []string{"kind"})
	AdmissionRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_admission_rejections_total",
		Help: "Total admission rejections, by reason",
	}, []string{"reason"})
	ValidationRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_validation_rejections_total",
		Help: "Total content validation rejections, by reason",
	}, []string{"reason"})
	GenerationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starling_generation_errors_total",
		Help: "Total text generation failures",
	})
	Cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starling_cycles_total",
		Help: "Total scheduler cycles run",
	})
	CycleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starling_cycle_errors_total",
		Help: "Total scheduler cycles aborted by an error",
	})
	SessionBreaks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starling_session_breaks_total",
		Help: "Total forced session breaks",
	})
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "starling_cycle_duration_seconds",
		Help:    "Scheduler cycle duration seconds, sleeps excluded",
		Buckets: prometheus.DefBuckets,
	})
	LLMRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_llm_retries_total",
		Help: "Total LLM request retry attempts",
	}, []string{"endpoint"})
	MonitorRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starling_monitor_running",
		Help: "1 while the monitor loop is running",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_command_runs_total",
		Help: "Total CLI command invocations, by command",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_command_errors_total",
		Help: "Total CLI command failures, by command",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		ActionsExecuted, AdmissionRejections, ValidationRejections,
		GenerationErrors, Cycles, CycleErrors, SessionBreaks, CycleDuration,
		LLMRetries, MonitorRunning, CommandRuns, CommandErrors,
	)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveCycleDuration records one cycle's working time.
func ObserveCycleDuration(start time.Time) {
	CycleDuration.Observe(time.Since(start).Seconds())
}

// IncAction increments the executed-action counter for a kind.
func IncAction(kind string) { ActionsExecuted.WithLabelValues(kind).Inc() }

// IncAdmissionRejection increments the admission rejection counter for a reason.
func IncAdmissionRejection(reason string) { AdmissionRejections.WithLabelValues(reason).Inc() }

// IncValidationRejection increments the validation rejection counter for a reason.
func IncValidationRejection(reason string) { ValidationRejections.WithLabelValues(reason).Inc() }

// IncLLMRetry increments the retry counter for an endpoint.
func IncLLMRetry(endpoint string) { LLMRetries.WithLabelValues(endpoint).Inc() }

// IncCommandRun increments the invocation counter for a CLI command.
func IncCommandRun(command string) { CommandRuns.WithLabelValues(command).Inc() }

// IncCommandError increments the failure counter for a CLI command.
func IncCommandError(command string) { CommandErrors.WithLabelValues(command).Inc() }
