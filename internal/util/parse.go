package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var salesVolumeRegex = regexp.MustCompile(`^\s*(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*([KkMm])?\+?`)

// ParseSalesVolume turns a "bought last month" badge such as "1K+ bought last
// month" into a count. K multiplies by 1,000 and M by 1,000,000. Empty or
// unparsable input yields 0.
func ParseSalesVolume(s string) int {
	m := salesVolumeRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		n *= 1_000
	case "M":
		n *= 1_000_000
	}
	return int(math.Round(n))
}
