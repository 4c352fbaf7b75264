package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests            *prometheus.CounterVec
	CounterHandleRequestPanic  *prometheus.CounterVec
	CounterWorkoutsCompleted   prometheus.Counter
	CounterStatisticsRecorded  prometheus.Counter
	CounterLedgerSkipped       *prometheus.CounterVec
	CounterDocumentConflicts   *prometheus.CounterVec
	CounterRemotePushes        *prometheus.CounterVec
	CounterOutboxCoalescedJobs prometheus.Counter

	// gauges
	GaugeRequests      prometheus.Gauge
	GaugeLifeSignal    prometheus.Gauge
	GaugeOutboxPending prometheus.Gauge

	// histograms
	HistRemotePushDuration   *prometheus.HistogramVec
	HistogramRequestDuration *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("workoutsync", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("workoutsync", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterHandleRequestPanic := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics, by route",
	}, []string{"route"})
	counterWorkoutsCompleted := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "workouts_completed",
		Help:      "The total number of workouts marked completed",
	})
	counterStatisticsRecorded := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "statistics_recorded",
		Help:      "The total number of session statistics merged into settings",
	})
	counterLedgerSkipped := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ledger_skipped",
		Help:      "Number of times a document update was skipped because an input document was missing",
	}, []string{"reason"})
	counterDocumentConflicts := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "document_conflicts",
		Help:      "Number of revision conflicts detected when writing local documents",
	}, []string{"key"})
	counterRemotePushes := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "remote_pushes",
		Help:      "The total number of pushes to the remote account store",
	}, []string{"kind", "result"})
	counterOutboxCoalescedJobs := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "outbox_coalesced_jobs",
		Help:      "Number of pending outbox jobs replaced by a newer document",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})
	gaugeOutboxPending := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "outbox_pending",
		Help:      "Current number of jobs waiting in the outbox",
	})

	histRemotePushDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "remote_push_duration_seconds",
		Help:      "Duration of a single push to the remote account store in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})

	return &Manager{
		CounterRequests:            counterRequests,
		CounterHandleRequestPanic:  counterHandleRequestPanic,
		CounterWorkoutsCompleted:   counterWorkoutsCompleted,
		CounterStatisticsRecorded:  counterStatisticsRecorded,
		CounterLedgerSkipped:       counterLedgerSkipped,
		CounterDocumentConflicts:   counterDocumentConflicts,
		CounterRemotePushes:        counterRemotePushes,
		CounterOutboxCoalescedJobs: counterOutboxCoalescedJobs,
		GaugeRequests:              gaugeRequests,
		GaugeLifeSignal:            gaugeLifeSignal,
		GaugeOutboxPending:         gaugeOutboxPending,
		HistRemotePushDuration:     histRemotePushDuration,
		HistogramRequestDuration:   histogramRequestDuration,
	}
}
