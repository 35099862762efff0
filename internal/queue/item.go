// Package queue provides the ordered work queue that decouples share ingress
// from storage I/O.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Kind identifies the storage handler a work item is dispatched to
type Kind string

const (
	KindLogShare     Kind = "log_share"
	KindAddBlock     Kind = "add_block"
	KindAgentSend    Kind = "agent_send"
	KindLogOneMinute Kind = "log_one_minute"
)

var (
	// ErrUnknownKind is returned for items whose kind has no handler
	ErrUnknownKind = errors.New("unknown work item kind")
	// ErrMissingPayload is returned for items without the payload their kind requires
	ErrMissingPayload = errors.New("work item payload missing")
	// ErrEmpty is returned by Get on an empty queue
	ErrEmpty = errors.New("queue is empty")
)

// Known reports whether k has a handler
func (k Kind) Known() bool {
	switch k {
	case KindLogShare, KindAddBlock, KindAgentSend, KindLogOneMinute:
		return true
	}
	return false
}

// ShareArgs accumulates one accepted share on a chain
type ShareArgs struct {
	Address  string  `json:"address"`
	Shares   float64 `json:"shares"`
	Algo     string  `json:"algo"`
	Currency string  `json:"currency"`
	Merged   bool    `json:"merged"`
}

// BlockArgs describes a solved block
type BlockArgs struct {
	Address      string `json:"address"`
	Worker       string `json:"worker"`
	Height       uint64 `json:"height"`
	TotalSubsidy int64  `json:"total_subsidy"`
	Fees         int64  `json:"fees"`
	HexBits      string `json:"hex_bits"`
	HexHash      string `json:"hex_hash"`
	Currency     string `json:"currency"`
	Algo         string `json:"algo"`
	Merged       bool   `json:"merged"`
}

// AgentArgs carries a mining agent telemetry report. Data is the producer's
// payload, kept as raw JSON until the handler interprets it.
type AgentArgs struct {
	Address string          `json:"address"`
	Worker  string          `json:"worker"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Stamp   int64           `json:"stamp"`
}

// MinuteArgs adds one completed per-minute share tally
type MinuteArgs struct {
	Address   string  `json:"address"`
	Worker    string  `json:"worker"`
	Algo      string  `json:"algo"`
	ShareType string  `json:"share_type"`
	Minute    int64   `json:"minute"`
	Amount    float64 `json:"amount"`
}

// Item is a unit of deferred work. Exactly one payload matching Kind is set.
type Item struct {
	Kind   Kind        `json:"kind"`
	Share  *ShareArgs  `json:"share,omitempty"`
	Block  *BlockArgs  `json:"block,omitempty"`
	Agent  *AgentArgs  `json:"agent,omitempty"`
	Minute *MinuteArgs `json:"minute,omitempty"`
}

// NewShareItem builds a log_share item
func NewShareItem(args ShareArgs) Item {
	return Item{Kind: KindLogShare, Share: &args}
}

// NewBlockItem builds an add_block item
func NewBlockItem(args BlockArgs) Item {
	return Item{Kind: KindAddBlock, Block: &args}
}

// NewAgentItem builds an agent_send item
func NewAgentItem(args AgentArgs) Item {
	return Item{Kind: KindAgentSend, Agent: &args}
}

// NewMinuteItem builds a log_one_minute item
func NewMinuteItem(args MinuteArgs) Item {
	return Item{Kind: KindLogOneMinute, Minute: &args}
}

// Validate checks the kind is known and its payload is present
func (i Item) Validate() error {
	if !i.Kind.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, i.Kind)
	}
	if i.Payload() == nil {
		return fmt.Errorf("%w: %s", ErrMissingPayload, i.Kind)
	}
	return nil
}

// Payload returns the payload matching the item's kind, or nil
func (i Item) Payload() interface{} {
	switch i.Kind {
	case KindLogShare:
		if i.Share != nil {
			return i.Share
		}
	case KindAddBlock:
		if i.Block != nil {
			return i.Block
		}
	case KindAgentSend:
		if i.Agent != nil {
			return i.Agent
		}
	case KindLogOneMinute:
		if i.Minute != nil {
			return i.Minute
		}
	}
	return nil
}

// Encode serializes an item for the durable queue
func Encode(item Item) ([]byte, error) {
	return sonic.Marshal(item)
}

// Decode parses an item read back from the durable queue. Validation is left
// to the consumer so that an unknown kind is reported per item.
func Decode(data []byte) (Item, error) {
	var item Item
	if err := sonic.Unmarshal(data, &item); err != nil {
		return Item{}, fmt.Errorf("decode work item: %w", err)
	}
	return item, nil
}
