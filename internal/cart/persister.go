package cart

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/storefront/internal/cart"

// persister пишет снимки корзины в хранилище в фоне.
// Слот pending хранит только самый свежий снимок: устаревшие вытесняются и не пишутся после новых.
type persister struct {
	storage domain.KeyValueStorage
	key     string
	timeout time.Duration
	logger  *log.Entry
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending *domain.CartState
	closed  bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func newPersister(storage domain.KeyValueStorage, key string, opts StoreOptions) *persister {
	p := &persister{
		storage: storage,
		key:     key,
		timeout: opts.PersistTimeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// schedule ставит снимок в очередь на запись и никогда не блокируется на хранилище.
func (p *persister) schedule(state domain.CartState) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pending = &state
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)

	for {
		select {
		case <-p.signal:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

func (p *persister) take() *domain.CartState {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.pending
	p.pending = nil
	return state
}

func (p *persister) flush() {
	state := p.take()
	if state == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "cart.persist")
	span.SetAttributes(
		attribute.String("cart.key", p.key),
		attribute.Int("cart.items", len(state.Items)),
	)
	defer span.End()

	start := time.Now()
	err := p.write(ctx, *state)
	duration := time.Since(start)

	if err != nil {
		// Запись теряется: состояние в памяти остаётся верным, следующая мутация запишет более новое.
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		p.metrics.RecordPersist(metrics.ResultError, duration)
		p.logger.WithError(err).WithField("key", p.key).Warn("failed to persist cart snapshot")
		return
	}
	p.metrics.RecordPersist(metrics.ResultOK, duration)
}

func (p *persister) write(ctx context.Context, state domain.CartState) error {
	data, err := EncodeSnapshot(state)
	if err != nil {
		return err
	}
	return p.storage.Set(ctx, p.key, data)
}

// close дописывает последний снимок и останавливает горутину.
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
