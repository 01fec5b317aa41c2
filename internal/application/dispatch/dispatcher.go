package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
	"github.com/mandi-exchange/negotiation-hub/internal/infrastructure/metrics"
)

// Config tunes push delivery.
type Config struct {
	Workers         int
	QueueSize       int
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	DedupeTTL       time.Duration
}

// DefaultConfig returns 4 workers, 3 retries and 200ms..5s backoff.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       256,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		DedupeTTL:       time.Hour,
	}
}

// Dispatcher pushes deliveries at least once. A recipient is always served
// by the same worker so its deliveries leave in seq order. Deliveries that
// exhaust their retries are parked for pull retrieval.
type Dispatcher struct {
	cfg       Config
	transport notification.Transport
	pending   notification.PendingStore
	delivered *cache.Cache
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	queues []chan *notification.Delivery
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewDispatcher(
	transport notification.Transport,
	pending notification.PendingStore,
	m *metrics.Metrics,
	cfg Config,
	logger zerolog.Logger,
) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = def.DedupeTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:       cfg,
		transport: transport,
		pending:   pending,
		delivered: cache.New(cfg.DedupeTTL, 2*cfg.DedupeTTL),
		metrics:   m,
		logger:    logger.With().Str("service", "dispatcher").Logger(),
		queues:    make([]chan *notification.Delivery, cfg.Workers),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := range d.queues {
		d.queues[i] = make(chan *notification.Delivery, cfg.QueueSize)
	}
	return d
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	for i := range d.queues {
		d.wg.Add(1)
		go d.run(d.queues[i])
	}
	d.logger.Info().Int("workers", len(d.queues)).Msg("Dispatcher started")
}

// Stop halts the workers and parks whatever was still queued.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
		d.logger.Info().Msg("Dispatcher stopped")
	})
}

// Enqueue hands deliveries to their recipient's worker without blocking. A
// full queue parks the delivery instead.
func (d *Dispatcher) Enqueue(deliveries ...*notification.Delivery) {
	for _, del := range deliveries {
		del.MaxRetries = d.cfg.MaxRetries
		if d.ctx.Err() != nil {
			d.park(context.Background(), del, "dispatcher stopped")
			continue
		}
		select {
		case d.queues[d.shard(del.Recipient)] <- del:
		default:
			d.park(d.ctx, del, "dispatch queue full")
		}
	}
}

func (d *Dispatcher) shard(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) run(queue chan *notification.Delivery) {
	defer d.wg.Done()
	for {
		select {
		case del := <-queue:
			d.deliver(d.ctx, del)
		case <-d.ctx.Done():
			for {
				select {
				case del := <-queue:
					d.park(context.Background(), del, "dispatcher stopped")
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) newBackOff(ctx context.Context, retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// deliver pushes one delivery with bounded exponential backoff.
func (d *Dispatcher) deliver(ctx context.Context, del *notification.Delivery) {
	if _, dup := d.delivered.Get(del.Key); dup {
		d.metrics.Deliveries.WithLabelValues("duplicate").Inc()
		return
	}

	op := func() error {
		if del.Status == notification.StatusFailed {
			if err := del.ResetForRetry(); err != nil {
				return backoff.Permanent(err)
			}
			d.metrics.Deliveries.WithLabelValues("retried").Inc()
		}
		if err := del.MarkSent(); err != nil {
			return backoff.Permanent(err)
		}
		if err := d.transport.Deliver(ctx, del); err != nil {
			_ = del.MarkFailed(err.Error())
			return err
		}
		return del.MarkDelivered()
	}
	err := backoff.Retry(op, d.newBackOff(ctx, del.MaxRetries))
	if err == nil {
		d.delivered.Set(del.Key, struct{}{}, cache.DefaultExpiration)
		d.metrics.Deliveries.WithLabelValues("delivered").Inc()
		d.logger.Debug().
			Str("key", del.Key).
			Int("attempts", del.Attempts).
			Msg("Delivery pushed")
		return
	}
	d.park(context.WithoutCancel(ctx), del, err.Error())
}

func (d *Dispatcher) park(ctx context.Context, del *notification.Delivery, reason string) {
	if del.Status == notification.StatusSent {
		_ = del.MarkFailed(reason)
	}
	if err := del.MarkParked(); err != nil && del.Status != notification.StatusParked {
		d.logger.Error().Err(err).Str("key", del.Key).Str("status", string(del.Status)).Msg("Cannot park delivery")
		return
	}
	if err := d.pending.Park(ctx, del); err != nil {
		d.logger.Error().Err(err).Str("key", del.Key).Msg("Failed to park delivery")
		return
	}
	d.metrics.Deliveries.WithLabelValues("parked").Inc()
	d.logger.Warn().
		Str("key", del.Key).
		Str("recipient", del.Recipient).
		Int("attempts", del.Attempts).
		Str("reason", reason).
		Msg("Delivery parked")
}

// Pending lists parked deliveries for a recipient in seq order.
func (d *Dispatcher) Pending(ctx context.Context, recipient string) ([]*notification.Delivery, error) {
	return d.pending.ListPending(ctx, recipient)
}

// Ack removes a parked delivery. Acking an already delivered key is a no-op.
func (d *Dispatcher) Ack(ctx context.Context, key string) error {
	err := d.pending.Ack(ctx, key)
	if errors.Is(err, notification.ErrDeliveryNotFound) {
		if _, ok := d.delivered.Get(key); ok {
			return nil
		}
	}
	if err != nil {
		return err
	}
	d.delivered.Set(key, struct{}{}, cache.DefaultExpiration)
	return nil
}

// Redeliver pushes a reconnecting recipient's parked deliveries once more.
// They stay parked until acknowledged.
func (d *Dispatcher) Redeliver(ctx context.Context, recipient string) (int, error) {
	parked, err := d.pending.ListPending(ctx, recipient)
	if err != nil {
		return 0, fmt.Errorf("failed to list parked deliveries: %w", err)
	}
	sent := 0
	for _, del := range parked {
		if err := d.transport.Deliver(ctx, del); err != nil {
			d.logger.Debug().Err(err).Str("key", del.Key).Msg("Redelivery stopped")
			break
		}
		sent++
	}
	if sent > 0 {
		d.metrics.Deliveries.WithLabelValues("redelivered").Add(float64(sent))
	}
	return sent, nil
}
