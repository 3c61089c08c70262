package transfer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var speedUnits = map[string]int64{
	"":    B,
	"B":   B,
	"K":   KB,
	"KB":  KB,
	"KIB": KB,
	"M":   MB,
	"MB":  MB,
	"MIB": MB,
	"G":   GB,
	"GB":  GB,
	"GIB": GB,
}

// ParseSpeedLimit turns "512KB", "1.5M", "2MB/s" or a plain byte count into
// bytes per second. "0" and "unlimited" yield 0.
func ParseSpeedLimit(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "/S")
	switch s {
	case "":
		return 0, fmt.Errorf("empty speed limit")
	case "0", "UNLIMITED":
		return 0, nil
	}
	cut := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	numStr, unit := s, ""
	if cut >= 0 {
		numStr, unit = s[:cut], strings.TrimSpace(s[cut:])
	}
	if numStr == "" {
		return 0, fmt.Errorf("invalid speed limit %q: no numeric value", s)
	}
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid speed limit %q: %w", s, err)
	}
	mult, ok := speedUnits[unit]
	if !ok {
		return 0, fmt.Errorf("invalid speed limit unit %q (use B, KB, MB or GB)", unit)
	}
	return int64(num * float64(mult)), nil
}
