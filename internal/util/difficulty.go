package util

import (
	"math/big"
)

// Diff1Target is the difficulty 1 target
var Diff1Target = new(big.Int).SetBytes([]byte{
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
})

// CompactToTarget converts compact target representation to big.Int
func CompactToTarget(compact uint32) *big.Int {
	exponent := compact >> 24
	mantissa := compact & 0x007fffff

	var target *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		target = big.NewInt(int64(mantissa))
	} else {
		target = big.NewInt(int64(mantissa))
		target.Lsh(target, 8*(uint(exponent)-3))
	}

	if compact&0x00800000 != 0 {
		target.Neg(target)
	}

	return target
}

// CompactToDifficulty returns the network difficulty encoded by hex nBits.
// Unparseable or non-positive targets yield zero.
func CompactToDifficulty(hexBits string) float64 {
	compact, err := ParseCompactBits(hexBits)
	if err != nil {
		return 0
	}
	target := CompactToTarget(compact)
	if target.Sign() <= 0 {
		return 0
	}
	diff, _ := new(big.Float).Quo(new(big.Float).SetInt(Diff1Target), new(big.Float).SetInt(target)).Float64()
	return diff
}
