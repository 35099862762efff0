package queue

import (
	"context"
	"sync"
)

// Queue is an ordered FIFO of work items with a single consumer.
//
// Put may be called from any goroutine and never performs I/O. Peek returns the
// oldest item without removing it, so a failed item is retried by peeking
// again; Get removes it once handled.
type Queue interface {
	Put(item Item) error
	Peek(ctx context.Context) (Item, bool, error)
	Get(ctx context.Context) error
	Size() int
	// Wake is signalled after Put so an idle consumer can resume early
	Wake() <-chan struct{}
}

// Memory is a non-durable in-process queue
type Memory struct {
	mu    sync.Mutex
	items []Item
	wake  chan struct{}
}

// NewMemory creates an empty in-memory queue
func NewMemory() *Memory {
	return &Memory{wake: make(chan struct{}, 1)}
}

// Put appends an item
func (m *Memory) Put(item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	signal(m.wake)
	return nil
}

// Peek returns the oldest item without removing it
func (m *Memory) Peek(ctx context.Context) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return Item{}, false, nil
	}
	return m.items[0], true, nil
}

// Get removes the oldest item
func (m *Memory) Get(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return ErrEmpty
	}
	m.items[0] = Item{}
	m.items = m.items[1:]
	return nil
}

// Size returns the number of pending items
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Wake returns the put notification channel
func (m *Memory) Wake() <-chan struct{} {
	return m.wake
}

// signal performs a non-blocking send on a 1-buffered channel
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
