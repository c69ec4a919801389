package cart

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const defaultPersistTimeout = 2 * time.Second

// StoreOptions задаёт параметры стора корзины и реестра сессий.
type StoreOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.Metrics
	PersistTimeout time.Duration
	Listeners      []Listener

	// Только для Registry: выселение простаивающих сессий и мягкий лимит их числа (0 — без ограничения).
	SessionIdleTTL time.Duration
	MaxSessions    int
	Clock          func() time.Time
}

// Option настраивает Store и Registry.
type Option func(*StoreOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *StoreOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *StoreOptions) {
		opts.Metrics = m
	}
}

// WithPersistTimeout ограничивает длительность одной записи в хранилище.
func WithPersistTimeout(timeout time.Duration) Option {
	return func(opts *StoreOptions) {
		opts.PersistTimeout = timeout
	}
}

// WithListener подписывает listener на мутации с момента открытия стора.
func WithListener(listener Listener) Option {
	return func(opts *StoreOptions) {
		if listener != nil {
			opts.Listeners = append(opts.Listeners, listener)
		}
	}
}

// WithSessionIdleTTL включает выселение сессий, не использованных дольше ttl.
func WithSessionIdleTTL(ttl time.Duration) Option {
	return func(opts *StoreOptions) {
		opts.SessionIdleTTL = ttl
	}
}

// WithMaxSessions ограничивает число сессий в памяти; при превышении выселяются самые давние.
func WithMaxSessions(n int) Option {
	return func(opts *StoreOptions) {
		opts.MaxSessions = n
	}
}

// WithClock подменяет источник времени реестра.
func WithClock(now func() time.Time) Option {
	return func(opts *StoreOptions) {
		opts.Clock = now
	}
}

func resolveOptions(options []Option) StoreOptions {
	opts := StoreOptions{PersistTimeout: defaultPersistTimeout}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "cart-store")
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	if opts.SessionIdleTTL < 0 {
		opts.SessionIdleTTL = 0
	}
	if opts.MaxSessions < 0 {
		opts.MaxSessions = 0
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return opts
}
