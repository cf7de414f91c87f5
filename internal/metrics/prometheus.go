package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	ticksTotal               prometheus.Counter
	tickErrorsTotal          prometheus.Counter
	workOrdersGeneratedTotal prometheus.Counter
	tickDuration             prometheus.Histogram
	triggersSelected         prometheus.Gauge
	materializationTotal     *prometheus.CounterVec

	// Notifier metrics
	notifyAttemptsTotal *prometheus.CounterVec
	notifyOutcomesTotal *prometheus.CounterVec
	webhookDuration     prometheus.Histogram
	eventsInFlight      prometheus.Gauge

	// EventBus metrics
	bufferSize       prometheus.Gauge
	bufferCapacity   prometheus.Gauge
	bufferSaturation prometheus.Gauge
	emitErrorsTotal  prometheus.Counter

	// Sweep metrics
	overdueTriggers prometheus.Gauge

	// Leader election metrics
	leaderStatus        prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initNotifierMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initSweepMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workpro_pm_ticks_total",
		Help: "Total number of scheduler ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workpro_pm_tick_errors_total",
		Help: "Total number of scheduler tick errors.",
	})
	s.workOrdersGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workpro_pm_work_orders_generated_total",
		Help: "Total number of work orders generated from triggers.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "workpro_pm_tick_duration_seconds",
		Help:    "Duration of each scheduler tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	s.triggersSelected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workpro_pm_triggers_selected",
		Help: "Number of due triggers selected in the last tick.",
	})
	s.materializationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workpro_pm_materializations_total",
		Help: "Total number of trigger evaluations by outcome.",
	}, []string{"outcome"})

	s.register(reg, s.ticksTotal, "workpro_pm_ticks_total")
	s.register(reg, s.tickErrorsTotal, "workpro_pm_tick_errors_total")
	s.register(reg, s.workOrdersGeneratedTotal, "workpro_pm_work_orders_generated_total")
	s.register(reg, s.tickDuration, "workpro_pm_tick_duration_seconds")
	s.register(reg, s.triggersSelected, "workpro_pm_triggers_selected")
	s.register(reg, s.materializationTotal, "workpro_pm_materializations_total")
}

func (s *PrometheusSink) initNotifierMetrics(reg prometheus.Registerer) {
	s.notifyAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workpro_pm_notify_attempts_total",
		Help: "Total number of webhook delivery attempts.",
	}, []string{"attempt", "status_class"})

	s.notifyOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workpro_pm_notify_outcomes_total",
		Help: "Total number of final delivery outcomes per event.",
	}, []string{"outcome"})

	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "workpro_pm_webhook_duration_seconds",
		Help:    "Webhook request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.eventsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workpro_pm_events_in_flight",
		Help: "Number of generation events currently being processed.",
	})

	s.register(reg, s.notifyAttemptsTotal, "workpro_pm_notify_attempts_total")
	s.register(reg, s.notifyOutcomesTotal, "workpro_pm_notify_outcomes_total")
	s.register(reg, s.webhookDuration, "workpro_pm_webhook_duration_seconds")
	s.register(reg, s.eventsInFlight, "workpro_pm_events_in_flight")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workpro_pm_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workpro_pm_eventbus_buffer_capacity",
		Help: "Configured event bus buffer capacity.",
	})
	s.bufferSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workpro_pm_eventbus_buffer_saturation",
		Help: "Event bus buffer fill ratio (0.0 to 1.0).",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workpro_pm_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "workpro_pm_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "workpro_pm_eventbus_buffer_capacity")
	s.register(reg, s.bufferSaturation, "workpro_pm_eventbus_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "workpro_pm_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initSweepMetrics(reg prometheus.Registerer) {
	s.overdueTriggers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workpro_pm_overdue_triggers",
		Help: "Number of calendar triggers overdue past the sweep threshold.",
	})

	s.register(reg, s.overdueTriggers, "workpro_pm_overdue_triggers")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workpro_pm_leader_status",
		Help: "1 if this instance is the leader, 0 otherwise.",
	})
	s.leaderAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workpro_pm_leader_acquired_total",
		Help: "Total number of times leadership was acquired.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workpro_pm_leader_lost_total",
		Help: "Total number of times leadership was lost, by reason.",
	}, []string{"reason"})

	s.register(reg, s.leaderStatus, "workpro_pm_leader_status")
	s.register(reg, s.leaderAcquiredTotal, "workpro_pm_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "workpro_pm_leader_lost_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, generated int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.workOrdersGeneratedTotal.Add(float64(generated))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) TriggersSelectedUpdate(count int) {
	s.triggersSelected.Set(float64(count))
}

func (s *PrometheusSink) MaterializationOutcome(outcome string) {
	s.materializationTotal.WithLabelValues(outcome).Inc()
}

// Notifier metrics implementation

func (s *PrometheusSink) NotifyAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.notifyAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) NotifyOutcome(outcome string) {
	s.notifyOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) EventsInFlightIncr() {
	s.eventsInFlight.Inc()
}

func (s *PrometheusSink) EventsInFlightDecr() {
	s.eventsInFlight.Dec()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(saturation float64) {
	s.bufferSaturation.Set(saturation)
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Sweep metrics implementation

func (s *PrometheusSink) OverdueTriggersUpdate(count int) {
	s.overdueTriggers.Set(float64(count))
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquiredTotal.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
