package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/queue"
	"github.com/tos-network/tos-reporter/internal/util"
)

// ErrBlockNotFound is returned when no solved block record exists for a hash
var ErrBlockNotFound = errors.New("solved block not found")

// RedisClient wraps Redis operations for the reporter
type RedisClient struct {
	client *redis.Client
	chain  int
	now    func() time.Time
}

// NewRedisClient creates a new Redis client writing shares to the given chain
func NewRedisClient(cfg *config.RedisConfig, chain int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	util.Info("Connected to Redis at ", cfg.URL)
	return &RedisClient{client: client, chain: chain, now: time.Now}, nil
}

// Client returns the underlying go-redis client
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Chain returns the share chain id this client accounts to
func (r *RedisClient) Chain() int {
	return r.chain
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// LogShareForChain credits shares to the accumulator of a currency/algorithm
// pair and appends the matching slice entry, in one transaction.
func (r *RedisClient) LogShareForChain(ctx context.Context, address string, shares float64, algo, currency string, merged bool) error {
	blockKey := CurrentBlockKey(currency, algo)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrByFloat(ctx, blockKey, ChainSharesField(r.chain), shares)
		pipe.RPush(ctx, ChainSliceKey(r.chain), ShareEntry(address, shares))
		return nil
	})
	return err
}

// AddBlock rotates the accounting period of the solved block's
// currency/algorithm pair and writes the solved block record. A record that
// was already rotated is completed without rotating again, so a retried call
// never moves the next period onto it.
func (r *RedisClient) AddBlock(ctx context.Context, args queue.BlockArgs) (*SolvedBlock, error) {
	if args.HexHash == "" {
		return nil, errors.New("solved block has no hash")
	}

	block := &SolvedBlock{
		Address:      args.Address,
		Worker:       args.Worker,
		Height:       args.Height,
		TotalSubsidy: args.TotalSubsidy,
		Fees:         args.Fees,
		HexBits:      args.HexBits,
		Hash:         args.HexHash,
		Currency:     args.Currency,
		Algo:         args.Algo,
		Merged:       args.Merged,
	}

	recordKey := SolvedBlockKey(args.HexHash)
	existing, err := r.client.HGetAll(ctx, recordKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", recordKey, err)
	}

	if _, rotated := existing[fieldSolveTime]; rotated {
		prev := parseSolvedBlock(existing)
		block.SolveTime = prev.SolveTime
		block.ChainIndexes = prev.ChainIndexes
		util.Warnf("Block %s was already rotated, completing its record", args.HexHash)
	} else {
		block.SolveTime = r.now().Unix()
		block.ChainIndexes, err = r.rotate(ctx, CurrentBlockKey(args.Currency, args.Algo), recordKey, block.SolveTime)
		if err != nil {
			return nil, err
		}
	}

	if err := r.client.HSet(ctx, recordKey, block.Fields()).Err(); err != nil {
		return nil, fmt.Errorf("write %s: %w", recordKey, err)
	}
	return block, nil
}

// rotate runs the rotation script once and returns the archived slice index
// of every chain that had shares in the closed period
func (r *RedisClient) rotate(ctx context.Context, currentKey, recordKey string, solveTime int64) (map[int]int64, error) {
	rotated, err := rotateScript.Run(ctx, r.client, []string{currentKey, recordKey}, solveTime).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("rotate %s: %w", recordKey, err)
	}
	return parseRotated(rotated)
}

// parseRotated decodes the "<chain>:<index>" pairs returned by the rotation
func parseRotated(rotated []string) (map[int]int64, error) {
	indexes := make(map[int]int64, len(rotated))
	for _, entry := range rotated {
		chainStr, idxStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("malformed rotation result %q", entry)
		}
		chain, err := strconv.Atoi(chainStr)
		if err != nil {
			return nil, fmt.Errorf("malformed rotation chain %q: %w", entry, err)
		}
		idx, err := strconv.ParseInt(idxStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed rotation index %q: %w", entry, err)
		}
		indexes[chain] = idx
	}
	return indexes, nil
}

// GetSolvedBlock reads back a solved block record
func (r *RedisClient) GetSolvedBlock(ctx context.Context, hash string) (*SolvedBlock, error) {
	fields, err := r.client.HGetAll(ctx, SolvedBlockKey(hash)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrBlockNotFound
	}
	return parseSolvedBlock(fields), nil
}

// WriteAgentTelemetry stores a per-device series report under the minute it
// was sampled in
func (r *RedisClient) WriteAgentTelemetry(ctx context.Context, typ, address, worker string, values []float64, stamp int64) error {
	if len(values) == 0 {
		return nil
	}

	key := AgentSeriesKey(typ, (stamp/60)*60)
	pipe := r.client.Pipeline()
	for i, v := range values {
		pipe.HSet(ctx, key, fmt.Sprintf("%s_%s_%d", address, worker, i), v)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// WriteAgentStatus replaces the latest status blob of a worker
func (r *RedisClient) WriteAgentStatus(ctx context.Context, address, worker string, blob []byte) error {
	return r.client.Set(ctx, AgentStatusKey(address, worker), blob, 0).Err()
}

// LogOneMinute adds a completed per-minute tally for a worker
func (r *RedisClient) LogOneMinute(ctx context.Context, shareType, algo string, minute int64, address, worker string, amount float64) error {
	return r.client.HIncrByFloat(ctx, MinuteTallyKey(shareType, algo, minute), address+"."+worker, amount).Err()
}
