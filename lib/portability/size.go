package portability

import (
	"math"
	"strconv"
	"strings"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// HumanSize renders bytes in base-1024 units, rounded to two decimals with
// a trailing ".0" stripped, matching the spec's size-formatting contract.
// dustin/go-humanize's own Bytes formatter uses SI-style units and a
// different rounding/trim rule, so it can't produce this exact shape; this
// stays a small stdlib formatter rather than bending a library's output
// format to match.
func HumanSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	value := float64(bytes)
	unit := sizeUnits[0]
	for _, u := range sizeUnits[1:] {
		if value < 1024 {
			break
		}
		value /= 1024
		unit = u
	}

	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + unit
}

// ParseHumanSize is the inverse of HumanSize: it turns "<number> <unit>"
// (or a bare byte count) back into bytes. Units are tried largest first,
// since every unit name ends in "B".
func ParseHumanSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for i := len(sizeUnits) - 1; i >= 0; i-- {
		u := sizeUnits[i]
		if strings.HasSuffix(s, u) {
			numPart := strings.TrimSpace(strings.TrimSuffix(s, u))
			f, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, err
			}
			for j := 0; j < i; j++ {
				f *= 1024
			}
			return int64(f), nil
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
