package focus

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTime renders seconds as HH:MM:SS. Negative, NaN and infinite input
// renders as 00:00:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "00:00:00"
	}
	total := int64(math.Floor(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseTime reads an HH:MM:SS string back into seconds.
func ParseTime(v string) (int64, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("parse time %q: want HH:MM:SS", v)
	}

	var fields [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse time %q: %w", v, err)
		}
		if n < 0 || (i > 0 && n > 59) {
			return 0, fmt.Errorf("parse time %q: field %d out of range", v, i)
		}
		fields[i] = n
	}
	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}
