// Package storage persists share accounting and solved blocks in Redis.
package storage

import (
	"sort"
	"strconv"
)

// SolvedBlock is the frozen record written for a solved block
type SolvedBlock struct {
	Address      string          `json:"address"`
	Worker       string          `json:"worker"`
	Height       uint64          `json:"height"`
	TotalSubsidy int64           `json:"total_subsidy"`
	Fees         int64           `json:"fees"`
	HexBits      string          `json:"hex_bits"`
	Hash         string          `json:"hash"`
	Currency     string          `json:"currency"`
	Algo         string          `json:"algo"`
	Merged       bool            `json:"merged"`
	SolveTime    int64           `json:"solve_time"`
	StartTime    int64           `json:"start_time,omitempty"`
	ChainShares  map[int]float64 `json:"chain_shares,omitempty"`
	ChainIndexes map[int]int64   `json:"chain_indexes"` // chain id -> archived slice index
}

// Fields returns the hash fields written on top of the frozen accumulator
func (b *SolvedBlock) Fields() map[string]interface{} {
	merged := 0
	if b.Merged {
		merged = 1
	}

	fields := map[string]interface{}{
		"address":       b.Address,
		"worker":        b.Worker,
		"height":        b.Height,
		"total_subsidy": b.TotalSubsidy,
		"fees":          b.Fees,
		"hex_bits":      b.HexBits,
		"hash":          b.Hash,
		"currency":      b.Currency,
		"algo":          b.Algo,
		"merged":        merged,
	}
	for chain, idx := range b.ChainIndexes {
		fields[SolveIndexField(chain)] = idx
	}
	return fields
}

// Chains returns the rotated chain ids in ascending order
func (b *SolvedBlock) Chains() []int {
	chains := make([]int, 0, len(b.ChainIndexes))
	for chain := range b.ChainIndexes {
		chains = append(chains, chain)
	}
	sort.Ints(chains)
	return chains
}

// parseSolvedBlock rebuilds a record from its hash fields
func parseSolvedBlock(fields map[string]string) *SolvedBlock {
	b := &SolvedBlock{
		Address:      fields["address"],
		Worker:       fields["worker"],
		HexBits:      fields["hex_bits"],
		Hash:         fields["hash"],
		Currency:     fields["currency"],
		Algo:         fields["algo"],
		Merged:       fields["merged"] == "1",
		ChainShares:  make(map[int]float64),
		ChainIndexes: make(map[int]int64),
	}
	b.Height, _ = strconv.ParseUint(fields["height"], 10, 64)
	b.TotalSubsidy, _ = strconv.ParseInt(fields["total_subsidy"], 10, 64)
	b.Fees, _ = strconv.ParseInt(fields["fees"], 10, 64)
	b.SolveTime, _ = strconv.ParseInt(fields[fieldSolveTime], 10, 64)
	b.StartTime, _ = strconv.ParseInt(fields[fieldStartTime], 10, 64)

	for field, value := range fields {
		if m := solveIndexField.FindStringSubmatch(field); m != nil {
			chain, _ := strconv.Atoi(m[1])
			b.ChainIndexes[chain], _ = strconv.ParseInt(value, 10, 64)
			continue
		}
		if m := chainSharesField.FindStringSubmatch(field); m != nil {
			chain, _ := strconv.Atoi(m[1])
			b.ChainShares[chain], _ = strconv.ParseFloat(value, 64)
		}
	}
	return b
}
