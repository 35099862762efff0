package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
)

// Redis is a durable queue backed by a Redis list.
//
// Producers only append to an in-process spool; the consumer moves the spool
// into the list with a single RPUSH before every Peek. Items that reached the
// list survive a restart, items still in the spool do not.
type Redis struct {
	client *redis.Client
	key    string

	mu    sync.Mutex
	spool [][]byte

	stored int64 // cached list length, consumer owned
	wake   chan struct{}
}

// NewRedis opens the durable queue stored at key
func NewRedis(ctx context.Context, client *redis.Client, key string) (*Redis, error) {
	n, err := client.LLen(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("queue length: %w", err)
	}

	return &Redis{
		client: client,
		key:    key,
		stored: n,
		wake:   make(chan struct{}, 1),
	}, nil
}

// Put spools an item for the consumer to persist
func (q *Redis) Put(item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	data, err := Encode(item)
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.spool = append(q.spool, data)
	q.mu.Unlock()

	signal(q.wake)
	return nil
}

// Flush persists spooled items to the list in enqueue order
func (q *Redis) Flush(ctx context.Context) error {
	q.mu.Lock()
	pending := q.spool
	q.spool = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	values := make([]interface{}, len(pending))
	for i, data := range pending {
		values[i] = data
	}

	n, err := q.client.RPush(ctx, q.key, values...).Result()
	if err != nil {
		// Put the batch back ahead of anything spooled meanwhile
		q.mu.Lock()
		q.spool = append(pending, q.spool...)
		q.mu.Unlock()
		return fmt.Errorf("queue flush: %w", err)
	}

	atomic.StoreInt64(&q.stored, n)
	return nil
}

// Peek flushes the spool and returns the head of the list
func (q *Redis) Peek(ctx context.Context) (Item, bool, error) {
	if err := q.Flush(ctx); err != nil {
		return Item{}, false, err
	}

	data, err := q.client.LIndex(ctx, q.key, 0).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.StoreInt64(&q.stored, 0)
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("queue peek: %w", err)
	}

	item, err := Decode(data)
	if err != nil {
		return Item{}, true, err
	}
	return item, true, nil
}

// Get removes the head of the list
func (q *Redis) Get(ctx context.Context) error {
	err := q.client.LPop(ctx, q.key).Err()
	if errors.Is(err, redis.Nil) {
		atomic.StoreInt64(&q.stored, 0)
		return ErrEmpty
	}
	if err != nil {
		return fmt.Errorf("queue get: %w", err)
	}

	if atomic.AddInt64(&q.stored, -1) < 0 {
		atomic.StoreInt64(&q.stored, 0)
	}
	return nil
}

// Size returns persisted plus spooled items without touching Redis
func (q *Redis) Size() int {
	q.mu.Lock()
	spooled := len(q.spool)
	q.mu.Unlock()
	return int(atomic.LoadInt64(&q.stored)) + spooled
}

// Wake returns the put notification channel
func (q *Redis) Wake() <-chan struct{} {
	return q.wake
}
