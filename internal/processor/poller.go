package processor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/imrishuroy/go-async-orderflow/internal/correlation"
	"github.com/imrishuroy/go-async-orderflow/internal/logging"
	"github.com/imrishuroy/go-async-orderflow/internal/queue"
)

// PollerConfig mirrors the event source mapping of the deployed worker.
type PollerConfig struct {
	BatchSize      int
	MaxConcurrency int
	// BatchTimeout bounds one batch. It should not exceed the queue visibility timeout.
	BatchTimeout time.Duration
	// IdleWait is slept after an empty receive. Zero for long-polling sources.
	IdleWait time.Duration
}

// Poller pulls batches from a queue.Source and feeds them to a Processor,
// with at most MaxConcurrency batches in flight. A batch is acknowledged only
// when every message in it was handled.
type Poller struct {
	source queue.Source
	proc   *Processor
	logger *zap.Logger
	cfg    PollerConfig

	sem      *semaphore.Weighted
	closing  *atomic.Bool
	inFlight *atomic.Int32
	wg       sync.WaitGroup
}

// NewPoller creates a poller. Zero values in cfg fall back to a batch of ten,
// one batch at a time and a 30s batch timeout.
func NewPoller(source queue.Source, proc *Processor, logger *zap.Logger, cfg PollerConfig) *Poller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 30 * time.Second
	}
	return &Poller{
		source:   source,
		proc:     proc,
		logger:   logger,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		closing:  atomic.NewBool(false),
		inFlight: atomic.NewInt32(0),
	}
}

// PollOnce receives one batch and processes it synchronously. It returns the
// number of messages received and the batch error, if any.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	batch, err := p.source.Receive(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	return len(batch), p.handleBatch(ctx, batch)
}

// Run polls until ctx is cancelled or Shutdown is called, then waits for
// in-flight batches to finish.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Poller started",
		zap.Int("batchSize", p.cfg.BatchSize),
		zap.Int("maxConcurrency", p.cfg.MaxConcurrency),
	)
	defer p.logger.Info("Poller stopped")

	for !p.closing.Load() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}

		batch, err := p.source.Receive(ctx, p.cfg.BatchSize)
		if err != nil {
			p.sem.Release(1)
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("Receive failed", logging.Err(err)...)
			p.idle(ctx)
			continue
		}
		if len(batch) == 0 {
			p.sem.Release(1)
			p.idle(ctx)
			continue
		}

		p.wg.Add(1)
		p.inFlight.Inc()
		go func(batch []queue.Delivery) {
			defer p.wg.Done()
			defer p.inFlight.Dec()
			defer p.sem.Release(1)
			// in-flight batches drain on shutdown; only the batch timeout stops them
			_ = p.handleBatch(context.WithoutCancel(ctx), batch)
		}(batch)
	}

	p.wg.Wait()
	return nil
}

// Shutdown stops Run from receiving further batches.
func (p *Poller) Shutdown() {
	p.closing.Store(true)
}

// InFlight returns the number of batches currently being processed.
func (p *Poller) InFlight() int {
	return int(p.inFlight.Load())
}

func (p *Poller) handleBatch(ctx context.Context, batch []queue.Delivery) error {
	bctx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()
	bctx = correlation.WithRequestID(bctx, uuid.NewString())

	if _, err := p.proc.ProcessBatch(bctx, batch); err != nil {
		p.logger.Warn("Batch failed, messages left for redelivery",
			append(logging.Err(err), zap.Int("recordCount", len(batch)))...)
		return err
	}
	if err := p.source.Ack(ctx, batch); err != nil {
		p.logger.Error("Failed to acknowledge batch",
			append(logging.Err(err), zap.Int("recordCount", len(batch)))...)
		return err
	}
	return nil
}

func (p *Poller) idle(ctx context.Context) {
	if p.cfg.IdleWait <= 0 {
		return
	}
	t := time.NewTimer(p.cfg.IdleWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
