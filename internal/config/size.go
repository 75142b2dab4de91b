package config

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeUnits maps suffixes to byte multipliers. Longer suffixes come first so
// "MiB" is matched before "B".
var sizeUnits = []struct {
	suffix     string
	multiplier float64
}{
	{"TIB", 1 << 40},
	{"GIB", 1 << 30},
	{"MIB", 1 << 20},
	{"KIB", 1 << 10},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

// ParseSize converts a human-readable size to bytes. SI (KB, MB, GB, TB) and
// IEC (KiB, MiB, GiB, TiB) suffixes are accepted case-insensitively; a bare
// number is raw bytes. Empty string and "0" return 0.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	upper := strings.ToUpper(s)
	multiplier := 1.0
	num := s

	for _, u := range sizeUnits {
		if strings.HasSuffix(upper, u.suffix) {
			multiplier = u.multiplier
			num = strings.TrimSpace(s[:len(s)-len(u.suffix)])

			break
		}
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return int64(n * multiplier), nil
}
