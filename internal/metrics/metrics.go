package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raaddl/raad/internal/checksum"
	"github.com/raaddl/raad/pkg/manager"
	"github.com/raaddl/raad/pkg/transfer"
)

const namespace = "raad"

// Metrics holds the Prometheus collectors fed by the download manager.
// Each instance owns its registry so several can coexist in one process.
type Metrics struct {
	reg *prometheus.Registry

	// Outcomes
	TasksFinished   *prometheus.CounterVec // by status: Done, Error, Canceled
	ChecksumResults *prometheus.CounterVec // by state
	RetriesTotal    prometheus.Counter

	// Traffic
	QueueBytes *prometheus.CounterVec // by queue
	QueueToday *prometheus.GaugeVec   // by queue, resets daily

	// Snapshot of the task table
	Tasks         *prometheus.GaugeVec // by status
	Speed         prometheus.Gauge
	ReceivedBytes prometheus.Gauge
	TotalBytes    prometheus.Gauge
}

var _ manager.Recorder = (*Metrics)(nil)

// New creates the collectors on a fresh registry. Go runtime and process
// collectors are registered when runtime is true.
func New(runtime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		TasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal state",
		}, []string{"status"}),
		ChecksumResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_results_total",
			Help:      "Checksum verification results",
		}, []string{"state"}),
		RetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Automatic retries scheduled after a failure",
		}),
		QueueBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_downloaded_total",
			Help:      "Bytes received per queue",
		}, []string{"queue"}),
		QueueToday: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_downloaded_today_bytes",
			Help:      "Bytes counted against the daily quota of a queue",
		}, []string{"queue"}),
		Tasks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Tasks per status",
		}, []string{"status"}),
		Speed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speed_bytes_per_second",
			Help:      "Aggregate download speed",
		}),
		ReceivedBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "received_bytes",
			Help:      "Bytes received across all tasks",
		}),
		TotalBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_bytes",
			Help:      "Known sizes summed across all tasks",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) TaskFinished(status transfer.Status) {
	m.TasksFinished.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ChecksumResult(state checksum.State) {
	m.ChecksumResults.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) BytesDownloaded(queue string, n int64) {
	if n <= 0 {
		return
	}
	m.QueueBytes.WithLabelValues(queue).Add(float64(n))
}

func (m *Metrics) QueueDownloaded(queue string, today int64) {
	m.QueueToday.WithLabelValues(queue).Set(float64(today))
}

func (m *Metrics) Retry() { m.RetriesTotal.Inc() }

func (m *Metrics) Totals(t manager.Totals) {
	set := func(s transfer.Status, n int) {
		m.Tasks.WithLabelValues(strings.ToLower(string(s))).Set(float64(n))
	}
	set(transfer.StatusActive, t.Active)
	set(transfer.StatusQueued, t.Queued)
	set(transfer.StatusPaused, t.Paused)
	set(transfer.StatusDone, t.Done)
	set(transfer.StatusError, t.Failed)
	set(transfer.StatusCanceled, t.Canceled)
	m.Speed.Set(float64(t.Speed))
	m.ReceivedBytes.Set(float64(t.Received))
	m.TotalBytes.Set(float64(t.Total))
}
