package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Операции агрегата заказа, используются как значения label operation.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// OrderMetrics содержит метрики операций над агрегатом заказа.
// Все методы безопасны для nil-получателя, чтобы сервис работал без метрик.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated prometheus.Counter
	ordersUpdated prometheus.Counter
	ordersDeleted prometheus.Counter
	itemsDeleted  prometheus.Counter

	// Ошибки по операции и причине
	operationFailures   *prometheus.CounterVec
	cascadeItemFailures prometheus.Counter

	operationDuration *prometheus.HistogramVec

	// Счётчики событий timeline
	timelineEvents prometheus.Counter
	outboxEnqueued prometheus.Counter

	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном реестре (используется в тестах).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "furniture_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersUpdated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "furniture_orders_updated_total",
			Help: "Total number of orders updated",
		}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "furniture_orders_deleted_total",
			Help: "Total number of orders soft-deleted",
		}),
		itemsDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "furniture_order_items_deleted_total",
			Help: "Total number of order items soft-deleted by cascade",
		}),
		operationFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "furniture_order_operation_failures_total",
			Help: "Failed order operations by operation and reason",
		}, []string{"operation", "reason"}),
		cascadeItemFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "furniture_order_cascade_item_failures_total",
			Help: "Order items that could not be soft-deleted by best-effort cascade",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "furniture_order_operation_duration_seconds",
			Help:    "Duration of order aggregate operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "furniture_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEnqueued: registerCounter(registerer, prometheus.CounterOpts{
			Name: "furniture_outbox_enqueued_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "furniture_order_operations_in_flight",
			Help: "Number of order operations currently running",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}

// register возвращает уже зарегистрированный коллектор, если имя занято коллектором того же типа.
func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// Begin отмечает начало операции и возвращает функцию завершения.
func (m *OrderMetrics) Begin(operation string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderUpdated увеличивает счётчик обновлённых заказов.
func (m *OrderMetrics) RecordOrderUpdated() {
	if m == nil {
		return
	}
	m.ordersUpdated.Inc()
}

// RecordOrderDeleted фиксирует удаление заказа и число каскадно удалённых позиций.
func (m *OrderMetrics) RecordOrderDeleted(items int) {
	if m == nil {
		return
	}
	m.ordersDeleted.Inc()
	m.itemsDeleted.Add(float64(items))
}

// RecordFailure увеличивает счётчик ошибок операции.
func (m *OrderMetrics) RecordFailure(operation, reason string) {
	if m == nil {
		return
	}
	m.operationFailures.WithLabelValues(operation, reason).Inc()
}

// RecordCascadeItemFailures учитывает позиции, не удалённые best-effort каскадом.
func (m *OrderMetrics) RecordCascadeItemFailures(n int) {
	if m == nil {
		return
	}
	m.cascadeItemFailures.Add(float64(n))
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEnqueued увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEnqueued() {
	if m == nil {
		return
	}
	m.outboxEnqueued.Inc()
}
