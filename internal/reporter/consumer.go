package reporter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tos-network/tos-reporter/internal/queue"
	"github.com/tos-network/tos-reporter/internal/storage"
	"github.com/tos-network/tos-reporter/internal/util"
	"go.uber.org/zap"
)

type handlerFunc func(ctx context.Context, item queue.Item) error

type outcome int

const (
	outcomeIdle outcome = iota
	outcomeDone
	outcomeRetry
)

// consumeLoop applies queued items to storage one at a time, in order
func (r *Reporter) consumeLoop() {
	defer r.wg.Done()

	for r.ctx.Err() == nil {
		switch r.processNext(r.ctx) {
		case outcomeIdle:
			r.wait(r.cfg.IdleInterval, r.queue.Wake())
		case outcomeRetry:
			r.wait(r.cfg.RetryDelay, nil)
		case outcomeDone:
			if r.cfg.Interval > 0 {
				r.wait(r.cfg.Interval, nil)
			}
		}
	}
}

// wait sleeps for d, returning early on stop or a wake signal
func (r *Reporter) wait(d time.Duration, wake <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-r.ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}

// processNext handles the head of the queue. Transient failures leave the
// item in place for a retry; fatal ones drop it.
func (r *Reporter) processNext(ctx context.Context) outcome {
	item, ok, err := r.queue.Peek(ctx)
	if err != nil {
		if ok {
			// Present but unreadable, it will never decode
			r.discard(ctx, item, err)
			return outcomeDone
		}
		util.Errorw("Unable to read work queue, retrying", "error", err, "class", storage.Classify(err))
		r.retrying.Store(true)
		return outcomeRetry
	}
	if !ok {
		return outcomeIdle
	}

	err = r.dispatch(ctx, item)
	if err == nil {
		r.retrying.Store(false)
		r.metrics.processed.WithLabelValues(string(item.Kind)).Inc()
		r.remove(ctx)
		return outcomeDone
	}

	if storage.Classify(err) == storage.ClassTransient {
		r.retrying.Store(true)
		r.metrics.retried.WithLabelValues(string(item.Kind)).Inc()
		util.Errorw("Unable to process work item, retrying",
			"kind", item.Kind, "item", item.Payload(), "error", err)
		return outcomeRetry
	}

	r.discard(ctx, item, err)
	return outcomeDone
}

// discard logs a fatal failure and removes the item
func (r *Reporter) discard(ctx context.Context, item queue.Item, err error) {
	r.retrying.Store(false)
	r.metrics.discarded.WithLabelValues(string(item.Kind)).Inc()
	r.apm.RecordItemDiscarded(string(item.Kind), err)
	util.Errorw("Work item failed, data discarded",
		"kind", item.Kind, "item", item.Payload(), "error", err, zap.Stack("stack"))
	r.remove(ctx)
}

// remove pops the head of the queue, retrying until it succeeds or the
// reporter stops. A stop before success leaves the item to be handled again.
func (r *Reporter) remove(ctx context.Context) {
	for {
		err := r.queue.Get(ctx)
		if err == nil || errors.Is(err, queue.ErrEmpty) {
			return
		}
		util.Errorw("Unable to remove work item, retrying", "error", err)
		r.wait(r.cfg.RetryDelay, nil)
		if ctx.Err() != nil {
			return
		}
	}
}

// dispatch runs the handler for an item inside an APM transaction
func (r *Reporter) dispatch(ctx context.Context, item queue.Item) (err error) {
	if err := item.Validate(); err != nil {
		return err
	}

	handler, ok := r.handlers[item.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", queue.ErrUnknownKind, item.Kind)
	}

	txn := r.apm.StartTransaction("queue/" + string(item.Kind))
	if txn != nil {
		defer txn.End()
		ctx = r.apm.NewContext(ctx, txn)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic handling %s: %v", item.Kind, rec)
		}
		r.apm.NoticeError(txn, err)
	}()

	util.Debugf("Queue running %s with %+v", item.Kind, item.Payload())
	return handler(ctx, item)
}

func (r *Reporter) handleLogShare(ctx context.Context, item queue.Item) error {
	s := item.Share
	return r.store.LogShareForChain(ctx, s.Address, s.Shares, s.Algo, s.Currency, s.Merged)
}

func (r *Reporter) handleAddBlock(ctx context.Context, item queue.Item) error {
	block, err := r.store.AddBlock(ctx, *item.Block)
	if err != nil {
		return err
	}

	r.metrics.blocks.WithLabelValues(block.Currency, block.Algo).Inc()
	r.apm.AddAttribute(ctx, "block.hash", block.Hash)
	if len(block.ChainIndexes) == 0 {
		r.metrics.lostBlocks.WithLabelValues(block.Currency, block.Algo).Inc()
		util.Warnw("Solved block has no accounting period, shares may be lost",
			"hash", block.Hash, "currency", block.Currency, "algo", block.Algo)
	}
	r.apm.RecordBlockSolved(block.Hash, block.Currency, block.Algo, block.Height, len(block.ChainIndexes))
	util.Infof("Block %s recorded at height %d (%s/%s), rotated chains %v",
		block.Hash, block.Height, block.Currency, block.Algo, block.Chains())

	for _, l := range r.listeners {
		l.NotifyBlockSolved(block)
	}
	return nil
}

func (r *Reporter) handleAgentSend(ctx context.Context, item queue.Item) error {
	a := item.Agent
	switch a.Type {
	case "hashrate", "temp":
		var values []float64
		if err := sonic.Unmarshal(a.Data, &values); err != nil {
			return fmt.Errorf("agent %s data: %w", a.Type, err)
		}
		return r.store.WriteAgentTelemetry(ctx, a.Type, a.Address, a.Worker, values, a.Stamp)
	case "status":
		return r.store.WriteAgentStatus(ctx, a.Address, a.Worker, a.Data)
	default:
		util.Warnw("Received unsupported agent report type", "type", a.Type, "address", a.Address, "worker", a.Worker)
		return nil
	}
}

func (r *Reporter) handleLogOneMinute(ctx context.Context, item queue.Item) error {
	m := item.Minute
	return r.store.LogOneMinute(ctx, m.ShareType, m.Algo, m.Minute, m.Address, m.Worker, m.Amount)
}
