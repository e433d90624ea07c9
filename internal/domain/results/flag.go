package results

import (
	"strconv"
	"strings"
)

// FlagClassifier assigns a clinical flag to a raw value given its
// reference range. Implementations return an empty flag when they
// cannot classify, leaving the value unflagged.
type FlagClassifier interface {
	Classify(value, referenceRange string) Flag
}

// criticalFactor widens the reference range to the band beyond which a
// value is critical rather than merely high or low.
const criticalFactor = 1.5

// RangeClassifier classifies numeric values against a "low-high"
// reference range (e.g. "3.5-5.0"). Non-numeric values and malformed
// ranges yield no flag.
type RangeClassifier struct{}

func (RangeClassifier) Classify(value, referenceRange string) Flag {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return ""
	}
	low, high, ok := parseRange(referenceRange)
	if !ok {
		return ""
	}
	switch {
	case v > high*criticalFactor:
		return FlagCritical
	case low > 0 && v < low/criticalFactor:
		return FlagCritical
	case v > high:
		return FlagHigh
	case v < low:
		return FlagLow
	default:
		return FlagNormal
	}
}

func parseRange(s string) (low, high float64, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	high, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || high < low {
		return 0, 0, false
	}
	return low, high, true
}
