package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label "result".
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultEmpty    = "empty"
	ResultRestored = "restored"
	ResultCorrupt  = "corrupt"
	ResultSkipped  = "skipped"
)

// Metrics содержит метрики корзины, листинга каталога и HTTP-слоя.
// Все методы безопасны для nil-получателя, чтобы компоненты работали без метрик в тестах.
type Metrics struct {
	// Мутации корзины по операциям
	cartMutations *prometheus.CounterVec
	// Гидратация корзины из хранилища при старте сессии
	cartHydrations *prometheus.CounterVec

	// Фоновая запись снимков корзины
	persistWrites   *prometheus.CounterVec
	persistDuration prometheus.Histogram

	// Gauge для открытых сессий корзины
	sessionsActive prometheus.Gauge
	// Выселенные из памяти сессии по причине (idle, capacity)
	sessionsEvicted *prometheus.CounterVec

	// Догрузка страниц листинга
	productListFetches *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// События корзины, записанные в outbox
	cartEventsRecorded *prometheus.CounterVec

	// Публикация outbox
	outboxPublishAttempts  *prometheus.CounterVec
	outboxPendingRecords   prometheus.Gauge
	outboxOldestPendingAge prometheus.Gauge
}

// NewMetrics создаёт метрики в глобальном registry Prometheus.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer создаёт метрики в указанном registry (изолированные registry нужны тестам).
func NewMetricsWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of cart mutations grouped by operation",
		}, []string{"op"}),
		cartHydrations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_hydrate_total",
			Help: "Total number of cart sessions seeded from storage grouped by result",
		}, []string{"result"}),
		persistWrites: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_persist_total",
			Help: "Total number of background cart snapshot writes grouped by result",
		}, []string{"result"}),
		persistDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_cart_persist_duration_seconds",
			Help:    "Duration of background cart snapshot writes in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		sessionsActive: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cart_sessions_active",
			Help: "Number of cart sessions currently held in memory",
		}),
		sessionsEvicted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_sessions_evicted_total",
			Help: "Total number of cart sessions flushed and dropped from memory grouped by reason",
		}, []string{"reason"}),
		productListFetches: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_productlist_fetch_total",
			Help: "Total number of product list load-more attempts grouped by result",
		}, []string{"result"}),
		httpRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests grouped by method, route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		cartEventsRecorded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_events_recorded_total",
			Help: "Total number of cart events written to the outbox grouped by event type and result",
		}, []string{"event_type", "result"}),
		outboxPublishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Current number of pending records in the outbox",
		}),
		outboxOldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCartMutation увеличивает счётчик мутаций корзины.
func (m *Metrics) RecordCartMutation(op string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(op).Inc()
}

// RecordCartHydration фиксирует результат загрузки корзины при старте сессии.
func (m *Metrics) RecordCartHydration(result string) {
	if m == nil {
		return
	}
	m.cartHydrations.WithLabelValues(result).Inc()
}

// RecordPersist фиксирует результат и длительность фоновой записи снимка.
func (m *Metrics) RecordPersist(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.persistWrites.WithLabelValues(result).Inc()
	m.persistDuration.Observe(duration.Seconds())
}

// RecordSessionOpened увеличивает количество открытых сессий.
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// RecordSessionClosed уменьшает количество открытых сессий.
func (m *Metrics) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// RecordSessionEvicted фиксирует выселение сессии из памяти (reason: idle, capacity).
func (m *Metrics) RecordSessionEvicted(reason string) {
	if m == nil {
		return
	}
	m.sessionsEvicted.WithLabelValues(reason).Inc()
}

// RecordProductListFetch фиксирует результат догрузки страницы.
func (m *Metrics) RecordProductListFetch(result string) {
	if m == nil {
		return
	}
	m.productListFetches.WithLabelValues(result).Inc()
}

// RecordHTTPRequest фиксирует HTTP-запрос.
func (m *Metrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, fmt.Sprintf("%d", code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordCartEvent фиксирует запись события корзины в outbox.
func (m *Metrics) RecordCartEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.cartEventsRecorded.WithLabelValues(eventType, result).Inc()
}

// RecordOutboxPublish фиксирует попытку публикации из outbox (sent, retry_error, failed, dlq_failed).
func (m *Metrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublishAttempts.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер и возраст backlog outbox.
func (m *Metrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxPendingRecords.Set(float64(pending))
	m.outboxOldestPendingAge.Set(oldestAge.Seconds())
}
