package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/exploopio/scanimport/pkg/core"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/ris"
)

// Processor processes one raw report. *Driver implements it.
type Processor interface {
	Process(ctx context.Context, raw ris.RawReport) (*Result, error)
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	// QueueSize is the maximum number of pending reports.
	// Default: 100
	QueueSize int

	// Workers is the number of concurrent workers.
	// Default: 4
	Workers int

	// RateLimit caps the number of reports started per second.
	// Default: 0 (unlimited)
	RateLimit float64

	// Burst is the rate limiter burst size.
	// Default: 1
	Burst int

	// Timeout bounds the processing of one report.
	// Default: 5 minutes
	Timeout time.Duration

	// OnSubmitted is called when a report is queued.
	OnSubmitted func(item *QueueItem)

	// OnCompleted is called when a report is processed.
	OnCompleted func(item *QueueItem, result *Result)

	// OnFailed is called when a report fails.
	OnFailed func(item *QueueItem, err error)

	// Logger receives pool events. Default: nop.
	Logger core.Logger

	// Metrics receives queue gauges. Default: nop.
	Metrics metrics.Collector
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		QueueSize: 100,
		Workers:   4,
		Burst:     1,
		Timeout:   5 * time.Minute,
	}
}

// QueueItem is a pending report.
type QueueItem struct {
	ID          string        `json:"id"`
	Raw         ris.RawReport `json:"-"`
	Name        string        `json:"name,omitempty"`
	Format      ris.Format    `json:"format,omitempty"`
	Size        int           `json:"size"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// Pool processes reports concurrently. Each report is one unit of work and
// a failing report never affects the others.
type Pool struct {
	config    *PoolConfig
	processor Processor
	limiter   *rate.Limiter
	logger    core.Logger
	metrics   metrics.Collector

	queue chan *QueueItem

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Stats
	submitted  int64
	completed  int64
	failed     int64
	inProgress int32
	totalBytes int64
}

// NewPool creates a worker pool around processor.
func NewPool(config *PoolConfig, processor Processor) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst)
	}

	return &Pool{
		config:    config,
		processor: processor,
		limiter:   limiter,
		logger:    core.LoggerOrNop(config.Logger),
		metrics:   metrics.OrNop(config.Metrics),
		queue:     make(chan *QueueItem, config.QueueSize),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("pool started with %d workers, queue size %d", p.config.Workers, p.config.QueueSize)
	return nil
}

// Stop stops accepting reports and waits for queued and in-progress
// reports to finish.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues a report and returns its queue id.
func (p *Pool) Submit(raw ris.RawReport) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return "", fmt.Errorf("pool not running")
	}

	item := &QueueItem{
		ID:          uuid.NewString(),
		Raw:         raw,
		Name:        raw.Name,
		Format:      raw.Format,
		Size:        len(raw.Data),
		SubmittedAt: time.Now(),
	}

	select {
	case p.queue <- item:
		atomic.AddInt64(&p.submitted, 1)
		atomic.AddInt64(&p.totalBytes, int64(item.Size))
		p.metrics.GaugeSet(metrics.PoolQueueSize.Name, float64(len(p.queue)))

		if p.config.OnSubmitted != nil {
			p.config.OnSubmitted(item)
		}
		p.logger.Debug("report %s queued (name=%s, format=%s, bytes=%d)", item.ID, item.Name, item.Format, item.Size)
		return item.ID, nil
	default:
		return "", fmt.Errorf("queue full (size=%d)", p.config.QueueSize)
	}
}

// QueueLength returns the current queue length.
func (p *Pool) QueueLength() int {
	return len(p.queue)
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Submitted   int64 `json:"submitted"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	InProgress  int   `json:"in_progress"`
	QueueLength int   `json:"queue_length"`
	TotalBytes  int64 `json:"total_bytes"`
}

// GetStats returns current pool statistics.
func (p *Pool) GetStats() *Stats {
	return &Stats{
		Submitted:   atomic.LoadInt64(&p.submitted),
		Completed:   atomic.LoadInt64(&p.completed),
		Failed:      atomic.LoadInt64(&p.failed),
		InProgress:  int(atomic.LoadInt32(&p.inProgress)),
		QueueLength: len(p.queue),
		TotalBytes:  atomic.LoadInt64(&p.totalBytes),
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug("worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			// Drain remaining items before stopping
			for {
				select {
				case item := <-p.queue:
					p.processItem(ctx, item)
				default:
					return
				}
			}
		case item := <-p.queue:
			p.processItem(ctx, item)
		}
	}
}

func (p *Pool) processItem(ctx context.Context, item *QueueItem) {
	atomic.AddInt32(&p.inProgress, 1)
	p.metrics.GaugeSet(metrics.PoolQueueSize.Name, float64(len(p.queue)))
	p.metrics.GaugeInc(metrics.PoolActive.Name)
	defer func() {
		atomic.AddInt32(&p.inProgress, -1)
		p.metrics.GaugeDec(metrics.PoolActive.Name)
	}()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.fail(item, err)
			return
		}
	}

	procCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	result, err := p.processor.Process(procCtx, item.Raw)
	if err != nil {
		p.fail(item, err)
		return
	}

	if p.config.OnCompleted != nil {
		p.config.OnCompleted(item, result)
	}
	atomic.AddInt64(&p.completed, 1)
	p.logger.Debug("report %s completed (status=%s)", item.ID, result.Status)
}

func (p *Pool) fail(item *QueueItem, err error) {
	if p.config.OnFailed != nil {
		p.config.OnFailed(item, err)
	}
	atomic.AddInt64(&p.failed, 1)
	p.logger.Warn("report %s failed: %v", item.ID, err)
}

// Flush blocks until every submitted report has completed or failed.
func (p *Pool) Flush(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done := atomic.LoadInt64(&p.completed) + atomic.LoadInt64(&p.failed)
			if done >= atomic.LoadInt64(&p.submitted) {
				return nil
			}
		}
	}
}
