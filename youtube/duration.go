package youtube

import (
	"errors"
	"math"
	"regexp"
	"strconv"
)

// MaxDurationSeconds caps parsed durations so they fit an int on every
// platform.
const MaxDurationSeconds = math.MaxInt32

var isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO-8601 duration such as "PT1H2M3S" or
// "P1DT2H" to whole seconds. Empty or malformed input yields 0; durations
// beyond MaxDurationSeconds are capped there.
func ParseDuration(s string) int {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	units := [4]int{86400, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if errors.Is(err, strconv.ErrRange) || n > (MaxDurationSeconds-total)/unit {
			return MaxDurationSeconds
		}
		if err != nil {
			return 0
		}
		total += n * unit
	}
	return total
}
