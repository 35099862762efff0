package util

import (
	"math"
	"math/big"
	"testing"
)

func TestCompactToTarget(t *testing.T) {
	tests := []struct {
		compact  uint32
		expected string
	}{
		{0x1d00ffff, "ffff0000000000000000000000000000000000000000000000000000"},
		{0x03123456, "123456"},
		{0x02123400, "1234"},
	}

	for _, tt := range tests {
		target := CompactToTarget(tt.compact)
		want, _ := new(big.Int).SetString(tt.expected, 16)
		if target.Cmp(want) != 0 {
			t.Errorf("CompactToTarget(%#x) = %x, want %s", tt.compact, target, tt.expected)
		}
	}
}

func TestCompactToDifficulty(t *testing.T) {
	tests := []struct {
		bits string
		want float64
	}{
		{"1d00ffff", 1},
		{"1b0404cb", 16307.420938523983},
		{"", 0},
		{"nothex", 0},
		{"00000000", 0},
	}

	for _, tt := range tests {
		got := CompactToDifficulty(tt.bits)
		if math.Abs(got-tt.want) > 1e-6*math.Max(1, tt.want) {
			t.Errorf("CompactToDifficulty(%q) = %v, want %v", tt.bits, got, tt.want)
		}
	}
}
