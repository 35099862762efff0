package reporter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/queue"
	"github.com/tos-network/tos-reporter/internal/storage"
)

// fakeStore records calls and fails on demand
type fakeStore struct {
	mu       sync.Mutex
	failures []error
	panicMsg string
	noChains bool

	calls     int
	shares    []queue.ShareArgs
	blocks    []queue.BlockArgs
	telemetry map[string][]float64
	statuses  map[string]string
	minutes   []queue.MinuteArgs
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		telemetry: make(map[string][]float64),
		statuses:  make(map[string]string),
	}
}

// failNext makes the next len(errs) calls fail in order
func (s *fakeStore) failNext(errs ...error) {
	s.mu.Lock()
	s.failures = append(s.failures, errs...)
	s.mu.Unlock()
}

func (s *fakeStore) begin() error {
	s.calls++
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	return nil
}

func (s *fakeStore) LogShareForChain(ctx context.Context, address string, shares float64, algo, currency string, merged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	s.shares = append(s.shares, queue.ShareArgs{Address: address, Shares: shares, Algo: algo, Currency: currency, Merged: merged})
	return nil
}

func (s *fakeStore) AddBlock(ctx context.Context, args queue.BlockArgs) (*storage.SolvedBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	s.blocks = append(s.blocks, args)
	block := &storage.SolvedBlock{
		Hash:         args.HexHash,
		Height:       args.Height,
		Currency:     args.Currency,
		Algo:         args.Algo,
		ChainIndexes: map[int]int64{1: int64(len(s.blocks))},
	}
	if s.noChains {
		block.ChainIndexes = map[int]int64{}
	}
	return block, nil
}

func (s *fakeStore) WriteAgentTelemetry(ctx context.Context, typ, address, worker string, values []float64, stamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	s.telemetry[typ+":"+address+"."+worker] = values
	return nil
}

func (s *fakeStore) WriteAgentStatus(ctx context.Context, address, worker string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	s.statuses[address+"."+worker] = string(blob)
	return nil
}

func (s *fakeStore) LogOneMinute(ctx context.Context, shareType, algo string, minute int64, address, worker string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	s.minutes = append(s.minutes, queue.MinuteArgs{Address: address, Worker: worker, Algo: algo, ShareType: shareType, Minute: minute, Amount: amount})
	return nil
}

func (s *fakeStore) shareCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shares)
}

func testConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			RetryDelay:   5 * time.Millisecond,
			IdleInterval: 5 * time.Millisecond,
		},
	}
}

// drain processes items until the queue is idle, failing after limit steps
func drain(t *testing.T, r *Reporter, limit int) []outcome {
	t.Helper()
	var outcomes []outcome
	for i := 0; i < limit; i++ {
		o := r.processNext(context.Background())
		if o == outcomeIdle {
			return outcomes
		}
		outcomes = append(outcomes, o)
	}
	t.Fatalf("queue not drained after %d steps", limit)
	return nil
}

type blockRecorder struct {
	mu     sync.Mutex
	blocks []*storage.SolvedBlock
}

func (b *blockRecorder) NotifyBlockSolved(block *storage.SolvedBlock) {
	b.mu.Lock()
	b.blocks = append(b.blocks, block)
	b.mu.Unlock()
}
