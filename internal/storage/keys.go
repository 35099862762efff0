package storage

import (
	"fmt"
	"regexp"
	"strconv"
)

// Key patterns
const (
	keyCurrentBlock   = "current_block_%s_%s"
	keySolvedBlock    = "unproc_block_%s"
	keyChainSlice     = "chain_%d_slice"
	keyChainSliceIdx  = "chain_%d_slice_index"
	keyChainSliceHist = "chain_%d_slice_%d"
	keyMinuteTally    = "min_%s_%s_%d"
	keyAgentStatus    = "status_%s_%s"
	keyAgentSeries    = "%s_%d"

	fieldChainShares = "chain_%d_shares"
	fieldSolveIndex  = "chain_%d_solve_index"
	fieldStartTime   = "start_time"
	fieldSolveTime   = "solve_time"
)

var (
	solveIndexField  = regexp.MustCompile(`^chain_(\d+)_solve_index$`)
	chainSharesField = regexp.MustCompile(`^chain_(\d+)_shares$`)
)

// CurrentBlockKey returns the accumulator hash for a currency and algorithm
func CurrentBlockKey(currency, algo string) string {
	return fmt.Sprintf(keyCurrentBlock, currency, algo)
}

// SolvedBlockKey returns the frozen record hash for a solved block
func SolvedBlockKey(hash string) string {
	return fmt.Sprintf(keySolvedBlock, hash)
}

// ChainSliceKey returns the live share slice of a chain
func ChainSliceKey(chain int) string {
	return fmt.Sprintf(keyChainSlice, chain)
}

// ChainSliceIndexKey returns the slice rotation counter of a chain
func ChainSliceIndexKey(chain int) string {
	return fmt.Sprintf(keyChainSliceIdx, chain)
}

// ArchivedSliceKey returns the name a slice is archived under
func ArchivedSliceKey(chain int, index int64) string {
	return fmt.Sprintf(keyChainSliceHist, chain, index)
}

// ChainSharesField returns the accumulator field of a chain
func ChainSharesField(chain int) string {
	return fmt.Sprintf(fieldChainShares, chain)
}

// SolveIndexField returns the solved block field recording a chain's slice index
func SolveIndexField(chain int) string {
	return fmt.Sprintf(fieldSolveIndex, chain)
}

// MinuteTallyKey returns the per-minute share tally hash
func MinuteTallyKey(shareType, algo string, minute int64) string {
	return fmt.Sprintf(keyMinuteTally, shareType, algo, minute)
}

// AgentStatusKey returns the latest status blob key of a worker
func AgentStatusKey(address, worker string) string {
	return fmt.Sprintf(keyAgentStatus, address, worker)
}

// AgentSeriesKey returns the per-minute telemetry hash for a report type
func AgentSeriesKey(typ string, minute int64) string {
	return fmt.Sprintf(keyAgentSeries, typ, minute)
}

// ShareEntry formats a slice entry
func ShareEntry(address string, shares float64) string {
	return address + ":" + strconv.FormatFloat(shares, 'f', -1, 64)
}
