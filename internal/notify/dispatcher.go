package notify

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"mintWatch/internal/model"
)

const (
	defaultQueueSize    = 64
	defaultDrainTimeout = 30 * time.Second
)

// ErrClosed is returned by Handle after Close.
var ErrClosed = errors.New("dispatcher closed")

// Enricher resolves display metadata for a token. It never fails.
type Enricher interface {
	Enrich(ctx context.Context, tokenID *big.Int) model.TokenMetadata
}

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, mint model.MintEvent, meta model.TokenMetadata) error
}

// Metrics records delivery activity.
type Metrics interface {
	ObserveDelivery(err error)
	SetQueueDepth(depth int)
}

// Dispatcher moves mints off the polling path. A single worker enriches
// and delivers them in detection order.
type Dispatcher struct {
	enricher Enricher
	notifier Notifier
	metrics  Metrics
	logger   *zap.Logger

	queue        chan model.MintEvent
	drainTimeout time.Duration
	mu           sync.RWMutex
	closed       bool
	wg           sync.WaitGroup
}

func NewDispatcher(enricher Enricher, notifier Notifier, queueSize int, metrics Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		enricher: enricher,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		queue:        make(chan model.MintEvent, queueSize),
		drainTimeout: defaultDrainTimeout,
	}
}

// Start launches the delivery worker. The worker runs until Close. Once ctx
// is canceled, mints still queued are delivered within the drain timeout.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Handle queues a mint for delivery. It blocks only while the queue is full.
func (d *Dispatcher) Handle(ctx context.Context, mint model.MintEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- mint:
		d.setDepth()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting mints and waits for the worker to empty the queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	// in-flight sends outlive ctx; enricher and notifier carry their own timeouts
	deliverCtx := context.WithoutCancel(ctx)
	cancelDrain := func() {}
	defer func() { cancelDrain() }()

	draining := false
	for mint := range d.queue {
		if !draining && ctx.Err() != nil {
			draining = true
			deliverCtx, cancelDrain = context.WithTimeout(context.WithoutCancel(ctx), d.drainTimeout)
			d.logger.Info("drain mint alerts",
				zap.Int("queued", len(d.queue)+1),
				zap.Duration("timeout", d.drainTimeout),
			)
		}
		d.setDepth()
		d.deliver(deliverCtx, mint)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, mint model.MintEvent) {
	meta := d.enricher.Enrich(ctx, mint.TokenID)
	err := d.notifier.Notify(ctx, mint, meta)
	if d.metrics != nil {
		d.metrics.ObserveDelivery(err)
	}
	if err != nil {
		d.logger.Warn("mint alert not delivered",
			zap.String("token_id", mint.TokenID.String()),
			zap.String("owner", mint.Owner().Hex()),
			zap.Error(err),
		)
		return
	}
	d.logger.Info("mint alert sent",
		zap.String("token_id", mint.TokenID.String()),
		zap.String("owner", mint.Owner().Hex()),
		zap.Uint64("block_number", mint.BlockNumber),
	)
}

func (d *Dispatcher) setDepth() {
	if d.metrics != nil {
		d.metrics.SetQueueDepth(len(d.queue))
	}
}
