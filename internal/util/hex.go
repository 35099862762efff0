package util

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// IsValidHex checks if string is valid hexadecimal
func IsValidHex(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ParseCompactBits parses a block header's hex encoded nBits field
func ParseCompactBits(hexBits string) (uint32, error) {
	s := strings.TrimPrefix(hexBits, "0x")
	if len(s) == 0 || len(s) > 8 {
		return 0, fmt.Errorf("invalid compact bits %q", hexBits)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid compact bits %q: %w", hexBits, err)
	}
	return uint32(v), nil
}
