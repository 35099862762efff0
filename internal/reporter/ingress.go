package reporter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tos-network/tos-reporter/internal/queue"
	"github.com/tos-network/tos-reporter/internal/util"
)

// Client identifies the miner connection a share came from
type Client interface {
	Address() string
	Worker() string
}

// Job describes the work a share was submitted against
type Job interface {
	Algorithm() string
	Currency() string
	// MergedCurrencies lists auxiliary chains merge mined with this job
	MergedCurrencies() []string
}

// ShareType is the front end's verdict on a submitted share
type ShareType int

const (
	ShareValid ShareType = iota
	ShareDuplicate
	ShareLowDiff
	ShareStale
	ShareInvalid
)

var shareTypeNames = [...]string{"acc", "dup", "low", "stale", "inv"}

func (t ShareType) String() string {
	if t < 0 || int(t) >= len(shareTypeNames) {
		return fmt.Sprintf("sharetype(%d)", int(t))
	}
	return shareTypeNames[t]
}

// ParseShareType maps a share type name back to its value
func ParseShareType(s string) (ShareType, error) {
	s = strings.ToLower(s)
	for i, name := range shareTypeNames {
		if name == s {
			return ShareType(i), nil
		}
	}
	switch s {
	case "valid", "accepted":
		return ShareValid, nil
	case "duplicate":
		return ShareDuplicate, nil
	case "invalid":
		return ShareInvalid, nil
	}
	return 0, fmt.Errorf("unknown share type %q", s)
}

// Miner is a Client backed by plain values
type Miner struct {
	Addr string
	Name string
}

func (m Miner) Address() string { return m.Addr }
func (m Miner) Worker() string  { return m.Name }

// StaticJob is a Job backed by plain values
type StaticJob struct {
	Algo   string
	Coin   string
	Merged []string
}

func (j StaticJob) Algorithm() string          { return j.Algo }
func (j StaticJob) Currency() string           { return j.Coin }
func (j StaticJob) MergedCurrencies() []string { return j.Merged }

// StatsAggregator sees every share before accounting, whatever its type
type StatsAggregator interface {
	LogShare(client Client, diff float64, typ ShareType, algo string)
}

type noopStats struct{}

func (noopStats) LogShare(Client, float64, ShareType, string) {}

// LogShare records a share from the front end. Only valid shares are
// accounted: one item per merge mined currency, then one for the job's own
// currency. Never blocks on storage.
func (r *Reporter) LogShare(client Client, diff float64, typ ShareType, params []string, job Job, headerHash, header []byte) {
	algo := ""
	if job != nil {
		algo = job.Algorithm()
	}
	r.stats.LogShare(client, diff, typ, algo)

	if typ != ShareValid {
		return
	}
	if job == nil {
		util.Warnw("Valid share without job, not accounted", "address", client.Address(), "worker", client.Worker())
		return
	}

	for _, currency := range job.MergedCurrencies() {
		r.enqueue(queue.NewShareItem(queue.ShareArgs{
			Address:  client.Address(),
			Shares:   diff,
			Algo:     algo,
			Currency: currency,
			Merged:   true,
		}))
	}
	r.enqueue(queue.NewShareItem(queue.ShareArgs{
		Address:  client.Address(),
		Shares:   diff,
		Algo:     algo,
		Currency: job.Currency(),
	}))
}

// AgentSend records a mining agent report. The payload is stored as given.
func (r *Reporter) AgentSend(address, worker, typ string, data interface{}, stamp int64) {
	var raw json.RawMessage
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := sonic.Marshal(data)
		if err != nil {
			r.metrics.rejected.Inc()
			util.Errorw("Failed to encode agent data", "type", typ, "address", address, "error", err)
			return
		}
		raw = encoded
	}

	r.enqueue(queue.NewAgentItem(queue.AgentArgs{
		Address: address,
		Worker:  worker,
		Type:    typ,
		Data:    raw,
		Stamp:   stamp,
	}))
}

// AddBlock records a solved block. Rotation happens on the consumer.
func (r *Reporter) AddBlock(args queue.BlockArgs) {
	r.enqueue(queue.NewBlockItem(args))
}
