// Package reporter accepts share and block events from the stratum front end
// and applies them to storage through a durable work queue.
package reporter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/newrelic"
	"github.com/tos-network/tos-reporter/internal/queue"
	"github.com/tos-network/tos-reporter/internal/storage"
	"github.com/tos-network/tos-reporter/internal/util"
)

// Store is the storage the consumer applies work items to
type Store interface {
	LogShareForChain(ctx context.Context, address string, shares float64, algo, currency string, merged bool) error
	AddBlock(ctx context.Context, args queue.BlockArgs) (*storage.SolvedBlock, error)
	WriteAgentTelemetry(ctx context.Context, typ, address, worker string, values []float64, stamp int64) error
	WriteAgentStatus(ctx context.Context, address, worker string, blob []byte) error
	LogOneMinute(ctx context.Context, shareType, algo string, minute int64, address, worker string, amount float64) error
}

// BlockListener is told about every solved block once it has been recorded
type BlockListener interface {
	NotifyBlockSolved(block *storage.SolvedBlock)
}

// flusher is implemented by queues that buffer items in process
type flusher interface {
	Flush(ctx context.Context) error
}

// Status is the reporter's externally visible state
type Status struct {
	QueueSize int  `json:"queue_size"`
	Retrying  bool `json:"retrying"`
}

// Reporter owns the work queue and its single consumer
type Reporter struct {
	cfg   *config.QueueConfig
	store Store
	queue queue.Queue

	stats     StatsAggregator
	tally     *MinuteTally
	tallyTick time.Duration
	listeners []BlockListener
	apm       *newrelic.Agent
	metrics   *Metrics

	handlers map[queue.Kind]handlerFunc
	retrying atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a reporter. The per-minute tally is installed as the stats
// aggregator when stats are enabled.
func New(cfg *config.Config, store Store, q queue.Queue) *Reporter {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Reporter{
		cfg:    &cfg.Queue,
		store:  store,
		queue:  q,
		stats:  noopStats{},
		ctx:    ctx,
		cancel: cancel,
	}
	r.metrics = newMetrics(q.Size)
	r.handlers = map[queue.Kind]handlerFunc{
		queue.KindLogShare:     r.handleLogShare,
		queue.KindAddBlock:     r.handleAddBlock,
		queue.KindAgentSend:    r.handleAgentSend,
		queue.KindLogOneMinute: r.handleLogOneMinute,
	}

	if cfg.Stats.Enabled {
		r.tally = NewMinuteTally(r)
		r.tallyTick = cfg.Stats.FlushInterval
		r.stats = r.tally
	}
	return r
}

// SetStatsAggregator replaces the aggregator that sees every share
func (r *Reporter) SetStatsAggregator(stats StatsAggregator) {
	if stats == nil {
		stats = noopStats{}
	}
	r.stats = stats
}

// AddBlockListener registers a listener for recorded blocks
func (r *Reporter) AddBlockListener(l BlockListener) {
	r.listeners = append(r.listeners, l)
}

// SetAPM attaches a New Relic agent
func (r *Reporter) SetAPM(agent *newrelic.Agent) {
	r.apm = agent
}

// Metrics returns the reporter's Prometheus collectors
func (r *Reporter) Metrics() *Metrics {
	return r.metrics
}

// Status returns the current queue depth
func (r *Reporter) Status() Status {
	return Status{
		QueueSize: r.queue.Size(),
		Retrying:  r.retrying.Load(),
	}
}

// Start launches the consumer
func (r *Reporter) Start() {
	util.Info("Starting reporter...")

	r.wg.Add(1)
	go r.consumeLoop()

	if r.tally != nil && r.tallyTick > 0 {
		r.wg.Add(1)
		go r.tallyLoop()
	}

	if r.apm.IsEnabled() {
		r.wg.Add(1)
		go r.apmLoop()
	}

	util.Infof("Reporter started, %d items queued", r.queue.Size())
}

// Stop halts the consumer and persists anything still buffered. Unprocessed
// items stay in the queue.
func (r *Reporter) Stop() {
	util.Info("Stopping reporter...")
	r.cancel()
	r.wg.Wait()

	if r.tally != nil {
		r.tally.FlushAll()
	}

	if f, ok := r.queue.(flusher); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.Flush(ctx); err != nil {
			util.Errorf("Failed to persist queued items: %v", err)
		}
	}

	util.Infof("Reporter stopped, %d items queued", r.queue.Size())
}

// tallyLoop hands completed minute buckets to the queue
func (r *Reporter) tallyLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.tallyTick)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			r.tally.Flush(now)
		}
	}
}

// apmLoop reports queue depth to New Relic
func (r *Reporter) apmLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.apm.UpdateQueueMetrics(r.queue.Size(), r.retrying.Load())
		}
	}
}

// enqueue puts an item on the queue. Failures are logged, never returned to
// producers.
func (r *Reporter) enqueue(item queue.Item) {
	if err := r.queue.Put(item); err != nil {
		r.metrics.rejected.Inc()
		util.Errorw("Failed to enqueue work item", "kind", item.Kind, "error", err)
	}
}
