package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
)

const namespace = "vmmonitor"

type Metrics struct {
	registry *prometheus.Registry

	metricPolls        *prometheus.CounterVec
	vmCPU              *prometheus.GaugeVec
	vmMemory           *prometheus.GaugeVec
	alertsTotal        *prometheus.CounterVec
	alertsSuppressed   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	anomaliesTotal     *prometheus.CounterVec
	snapshotsTotal     *prometheus.CounterVec
	stateChanges       *prometheus.CounterVec
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	jobItemsFailed     *prometheus.CounterVec
	circuitState       *prometheus.GaugeVec
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
}

var (
	instance *Metrics
	once     sync.Once
)

func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		metricPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "metric_polls_total",
			Help: "Metric polls per provider and result.",
		}, []string{"provider", "result"}),
		vmCPU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "vm_cpu_percent",
			Help: "Latest polled CPU utilization per VM.",
		}, []string{"vm_id", "provider"}),
		vmMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "vm_memory_percent",
			Help: "Latest polled memory utilization per VM.",
		}, []string{"vm_id", "provider"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_total",
			Help: "Alerts inserted per type and severity.",
		}, []string{"alert_type", "severity"}),
		alertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_suppressed_total",
			Help: "Alert requests suppressed by deduplication.",
		}, []string{"alert_type"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Notification attempts per channel and result.",
		}, []string{"channel", "result"}),
		anomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "anomalies_total",
			Help: "Anomalies detected per metric.",
		}, []string{"metric"}),
		snapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshots_total",
			Help: "Snapshot operations per provider, operation and result.",
		}, []string{"provider", "operation", "result"}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "vm_state_changes_total",
			Help: "Observed VM state changes per new state.",
		}, []string{"state"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total",
			Help: "Scheduler ticks per job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help:    "Scheduler tick duration per job.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
		jobItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_items_failed_total",
			Help: "Items (VMs, snapshots, users) that failed inside a job tick.",
		}, []string{"job"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP API requests per method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP API request latency per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.metricPolls, m.vmCPU, m.vmMemory,
		m.alertsTotal, m.alertsSuppressed, m.notificationsTotal, m.anomaliesTotal,
		m.snapshotsTotal, m.stateChanges,
		m.jobRuns, m.jobDuration, m.jobItemsFailed,
		m.circuitState, m.httpRequests, m.httpLatency,
	)
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) IncMetricPoll(provider string, ok bool) {
	m.metricPolls.WithLabelValues(provider, result(ok)).Inc()
}

func (m *Metrics) SetVMUtilization(vmID, provider string, cpu, memory *float64) {
	if cpu != nil {
		m.vmCPU.WithLabelValues(vmID, provider).Set(*cpu)
	}
	if memory != nil {
		m.vmMemory.WithLabelValues(vmID, provider).Set(*memory)
	}
}

func (m *Metrics) IncAlert(alertType, severity string) {
	m.alertsTotal.WithLabelValues(alertType, severity).Inc()
}

func (m *Metrics) IncAlertSuppressed(alertType string) {
	m.alertsSuppressed.WithLabelValues(alertType).Inc()
}

func (m *Metrics) IncNotification(channel string, ok bool) {
	m.notificationsTotal.WithLabelValues(channel, result(ok)).Inc()
}

func (m *Metrics) IncAnomaly(metric string) {
	m.anomaliesTotal.WithLabelValues(metric).Inc()
}

func (m *Metrics) IncSnapshot(provider, operation string, ok bool) {
	m.snapshotsTotal.WithLabelValues(provider, operation, result(ok)).Inc()
}

func (m *Metrics) IncStateChange(state string) {
	m.stateChanges.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveJob(job string, d time.Duration, ok bool, failedItems int) {
	m.jobRuns.WithLabelValues(job, result(ok)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	if failedItems > 0 {
		m.jobItemsFailed.WithLabelValues(job).Add(float64(failedItems))
	}
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.circuitState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on its own port, for deployments without the HTTP API.
func StartServer(port int, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Get().Handler())

	addr := ":" + strconv.Itoa(port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Infof("Prometheus metrics server listening on %s", addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
	return srv
}
