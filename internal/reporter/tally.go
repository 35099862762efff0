package reporter

import (
	"sync"
	"time"

	"github.com/tos-network/tos-reporter/internal/queue"
)

type tallyKey struct {
	shareType string
	algo      string
	minute    int64
	address   string
	worker    string
}

// MinuteTally sums share difficulty per worker, share type and algorithm for
// each wall clock minute, then queues every completed minute for storage.
type MinuteTally struct {
	r   *Reporter
	now func() time.Time

	mu      sync.Mutex
	buckets map[tallyKey]float64
}

// NewMinuteTally creates a tally that enqueues through r
func NewMinuteTally(r *Reporter) *MinuteTally {
	return &MinuteTally{
		r:       r,
		now:     time.Now,
		buckets: make(map[tallyKey]float64),
	}
}

// LogShare adds a share to the current minute
func (t *MinuteTally) LogShare(client Client, diff float64, typ ShareType, algo string) {
	key := tallyKey{
		shareType: typ.String(),
		algo:      algo,
		minute:    minuteOf(t.now()),
		address:   client.Address(),
		worker:    client.Worker(),
	}

	t.mu.Lock()
	t.buckets[key] += diff
	t.mu.Unlock()
}

// Flush enqueues every bucket of a minute that ended before now
func (t *MinuteTally) Flush(now time.Time) int {
	return t.flush(minuteOf(now))
}

// FlushAll enqueues every bucket including the current minute
func (t *MinuteTally) FlushAll() int {
	return t.flush(-1)
}

// flush enqueues buckets older than current; negative flushes everything
func (t *MinuteTally) flush(current int64) int {
	t.mu.Lock()
	var done []queue.MinuteArgs
	for key, amount := range t.buckets {
		if current >= 0 && key.minute >= current {
			continue
		}
		done = append(done, queue.MinuteArgs{
			Address:   key.address,
			Worker:    key.worker,
			Algo:      key.algo,
			ShareType: key.shareType,
			Minute:    key.minute,
			Amount:    amount,
		})
		delete(t.buckets, key)
	}
	t.mu.Unlock()

	for _, args := range done {
		t.r.enqueue(queue.NewMinuteItem(args))
	}
	return len(done)
}

// Pending returns the number of open buckets
func (t *MinuteTally) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

func minuteOf(ts time.Time) int64 {
	unix := ts.Unix()
	return unix - unix%60
}
