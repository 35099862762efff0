package reporter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/queue"
	"github.com/tos-network/tos-reporter/internal/storage"
)

func setupEndToEnd(t *testing.T) (*miniredis.Miniredis, *Reporter, *queue.Redis) {
	t.Helper()
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := storage.NewRedisClient(&config.RedisConfig{URL: mr.Addr()}, 1)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	q, err := queue.NewRedis(ctx, store.Client(), "reporter:queue")
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	return mr, New(testConfig(), store, q), q
}

func TestAddBlockEndToEnd(t *testing.T) {
	mr, r, _ := setupEndToEnd(t)

	rec := &blockRecorder{}
	r.AddBlockListener(rec)

	r.LogShare(Miner{Addr: "1Foo", Name: "w1"}, 42.5, ShareValid, nil, StaticJob{Algo: "sha256", Coin: "BTC"}, nil, nil)
	r.AddBlock(queue.BlockArgs{
		Address:      "1Foo",
		Worker:       "w1",
		Height:       100,
		TotalSubsidy: 500000000,
		Fees:         1000,
		HexBits:      "1d00ffff",
		HexHash:      "abc123",
		Currency:     "BTC",
		Algo:         "sha256",
	})

	if got := r.Status().QueueSize; got != 2 {
		t.Fatalf("QueueSize = %d, want 2", got)
	}

	outcomes := drain(t, r, 10)
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %v, want 2", outcomes)
	}

	want := map[string]string{
		"chain_1_shares":      "42.5",
		"address":             "1Foo",
		"worker":              "w1",
		"height":              "100",
		"total_subsidy":       "500000000",
		"fees":                "1000",
		"hex_bits":            "1d00ffff",
		"hash":                "abc123",
		"currency":            "BTC",
		"algo":                "sha256",
		"merged":              "0",
		"chain_1_solve_index": "1",
	}
	for field, value := range want {
		if got := mr.HGet("unproc_block_abc123", field); got != value {
			t.Errorf("unproc_block_abc123.%s = %q, want %q", field, got, value)
		}
	}
	if mr.HGet("unproc_block_abc123", "solve_time") == "" {
		t.Error("solve_time missing")
	}

	slice, _ := mr.List("chain_1_slice_1")
	if len(slice) != 1 || slice[0] != "1Foo:42.5" {
		t.Errorf("chain_1_slice_1 = %v, want [1Foo:42.5]", slice)
	}

	start := mr.HGet("current_block_BTC_sha256", "start_time")
	if start == "" || start != mr.HGet("unproc_block_abc123", "solve_time") {
		t.Errorf("start_time = %q, want solve time", start)
	}

	if len(rec.blocks) != 1 || rec.blocks[0].ChainIndexes[1] != 1 {
		t.Errorf("listener got %+v", rec.blocks)
	}
	if r.Status().QueueSize != 0 {
		t.Errorf("QueueSize after drain = %d", r.Status().QueueSize)
	}
}

func TestMergedSharesEndToEnd(t *testing.T) {
	mr, r, _ := setupEndToEnd(t)

	job := StaticJob{Algo: "scrypt", Coin: "LTC", Merged: []string{"DOGE"}}
	r.LogShare(Miner{Addr: "LFoo", Name: "a"}, 8, ShareValid, nil, job, nil, nil)
	r.LogShare(Miner{Addr: "LBar", Name: "b"}, 2, ShareValid, nil, job, nil, nil)
	drain(t, r, 10)

	if got := mr.HGet("current_block_LTC_scrypt", "chain_1_shares"); got != "10" {
		t.Errorf("LTC shares = %s, want 10", got)
	}
	if got := mr.HGet("current_block_DOGE_scrypt", "chain_1_shares"); got != "10" {
		t.Errorf("DOGE shares = %s, want 10", got)
	}

	// Both currencies append to the chain's single slice
	slice, _ := mr.List("chain_1_slice")
	want := []string{"LFoo:8", "LFoo:8", "LBar:2", "LBar:2"}
	if len(slice) != len(want) {
		t.Fatalf("slice = %v, want %v", slice, want)
	}
	for i := range want {
		if slice[i] != want[i] {
			t.Errorf("slice[%d] = %s, want %s", i, slice[i], want[i])
		}
	}

	r.AddBlock(queue.BlockArgs{HexHash: "dogeblock", Currency: "DOGE", Algo: "scrypt", Merged: true})
	drain(t, r, 5)

	if got := mr.HGet("unproc_block_dogeblock", "merged"); got != "1" {
		t.Errorf("merged = %s, want 1", got)
	}
	if got := mr.HGet("current_block_LTC_scrypt", "chain_1_shares"); got != "10" {
		t.Errorf("LTC period should be untouched by the DOGE solve, got %s", got)
	}
}

func TestStopPersistsSpool(t *testing.T) {
	mr, r, q := setupEndToEnd(t)

	r.AgentSend("1Foo", "rig1", "status", map[string]string{"state": "ok"}, 1700000000)
	if n, _ := mr.List("reporter:queue"); len(n) != 0 {
		t.Fatalf("Put should not touch Redis, list = %v", n)
	}

	r.Stop()

	items, err := mr.List("reporter:queue")
	if err != nil || len(items) != 1 {
		t.Fatalf("persisted queue = %v, %v", items, err)
	}
	if q.Size() != 1 {
		t.Errorf("Size() = %d, want 1", q.Size())
	}
}
