// Package metrics exposes agent loop counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "babyagi"

// Recorder holds the loop metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry      *prometheus.Registry
	tasksStarted  prometheus.Counter
	tasksFinished *prometheus.CounterVec
	tasksQueued   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	pending       prometheus.Gauge
	execDuration  *prometheus.HistogramVec
}

// New creates a Recorder with its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_started_total",
			Help:      "Tasks dequeued by the agent loop.",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status.",
		}, []string{"status"}),
		tasksQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_queued_total",
			Help:      "Tasks added to the queue, by source.",
		}, []string{"source"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Agent runs that ended, by reason.",
		}, []string{"reason"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_pending",
			Help:      "Pending tasks in the current session.",
		}),
		execDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_execution_seconds",
			Help:      "Executor latency per task.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"agent"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.tasksStarted,
		r.tasksFinished,
		r.tasksQueued,
		r.runsFinished,
		r.pending,
		r.execDuration,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// TaskStarted counts a dequeued task.
func (r *Recorder) TaskStarted() {
	if r == nil {
		return
	}
	r.tasksStarted.Inc()
}

// TaskFinished records a terminal status and the executor latency.
func (r *Recorder) TaskFinished(agent, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.tasksFinished.WithLabelValues(status).Inc()
	r.execDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// TasksQueued counts tasks added from source (initial, medical, follow_up).
func (r *Recorder) TasksQueued(source string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.tasksQueued.WithLabelValues(source).Add(float64(n))
}

// RunFinished counts an ended run.
func (r *Recorder) RunFinished(reason string) {
	if r == nil {
		return
	}
	r.runsFinished.WithLabelValues(reason).Inc()
}

// SetPending sets the pending task gauge.
func (r *Recorder) SetPending(n int) {
	if r == nil {
		return
	}
	r.pending.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, r *Recorder) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
