package market

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Bucket is one market outcome: a temperature range [Lo, Hi) in °F and its
// current price. A nil bound is open (−∞ for Lo, +∞ for Hi).
type Bucket struct {
	TokenID string
	Label   string
	Lo      *float64
	Hi      *float64
	Price   float64
}

// Range renders the bucket bounds, e.g. "[70,73)" or "[95,+inf)".
func (b Bucket) Range() string {
	lo, hi := "-inf", "+inf"
	if b.Lo != nil {
		lo = strconv.FormatFloat(*b.Lo, 'f', -1, 64)
	}
	if b.Hi != nil {
		hi = strconv.FormatFloat(*b.Hi, 'f', -1, 64)
	}
	return fmt.Sprintf("[%s,%s)", lo, hi)
}

// Bound returns a pointer to v, for building buckets.
func Bound(v float64) *float64 { return &v }

const num = `(-?\d+(?:\.\d+)?)`

var (
	unitPattern = regexp.MustCompile(`(\d)\s*f\b`)

	rangePattern        = regexp.MustCompile(`^` + num + `\s*(?:-|to)\s*` + num + `$`)
	betweenPattern      = regexp.MustCompile(`^between\s+` + num + `\s+and\s+` + num + `$`)
	orAbovePattern      = regexp.MustCompile(`^` + num + `\s*(?:or (?:above|higher|more)|and (?:above|up|higher)|\+)$`)
	atLeastPattern      = regexp.MustCompile(`^(?:≥|>=|at least)\s*` + num + `$`)
	strictAbovePattern  = regexp.MustCompile(`^(?:above|over|more than|greater than|higher than|>)\s*` + num + `$`)
	orBelowPattern      = regexp.MustCompile(`^` + num + `\s*(?:or (?:below|lower|less)|and (?:below|under|lower))$`)
	atMostPattern       = regexp.MustCompile(`^(?:≤|<=|at most)\s*` + num + `$`)
	strictBelowPattern  = regexp.MustCompile(`^(?:below|under|less than|lower than|<)\s*` + num + `$`)
	singleDegreePattern = regexp.MustCompile(`^` + num + `$`)
)

// ParseBucket parses an outcome label into a temperature range. Labels are
// read as whole reported degrees: "70-72°F" covers 70, 71 and 72, which is
// the half-open range [70,73). ok is false for anything that is not a
// temperature range, including inverted ranges.
func ParseBucket(label string) (lo, hi *float64, ok bool) {
	s := normalizeLabel(label)
	if s == "" {
		return nil, nil, false
	}

	if m := rangePattern.FindStringSubmatch(s); m != nil {
		return closedRange(m[1], m[2])
	}
	if m := betweenPattern.FindStringSubmatch(s); m != nil {
		return closedRange(m[1], m[2])
	}
	if m := orAbovePattern.FindStringSubmatch(s); m != nil {
		return floatPtr(m[1], 0), nil, true
	}
	if m := atLeastPattern.FindStringSubmatch(s); m != nil {
		return floatPtr(m[1], 0), nil, true
	}
	if m := strictAbovePattern.FindStringSubmatch(s); m != nil {
		return floatPtr(m[1], 1), nil, true
	}
	if m := orBelowPattern.FindStringSubmatch(s); m != nil {
		return nil, floatPtr(m[1], 1), true
	}
	if m := atMostPattern.FindStringSubmatch(s); m != nil {
		return nil, floatPtr(m[1], 1), true
	}
	if m := strictBelowPattern.FindStringSubmatch(s); m != nil {
		return nil, floatPtr(m[1], 0), true
	}
	if m := singleDegreePattern.FindStringSubmatch(s); m != nil {
		return floatPtr(m[1], 0), floatPtr(m[1], 1), true
	}
	return nil, nil, false
}

func normalizeLabel(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.NewReplacer(
		"°", "", "º", "", "fahrenheit", "", "degrees", "", "degree", "",
		"–", "-", "—", "-", "−", "-",
	).Replace(s)
	s = unitPattern.ReplaceAllString(s, "$1")
	s = strings.TrimSuffix(s, "?")
	return strings.Join(strings.Fields(s), " ")
}

func closedRange(a, b string) (*float64, *float64, bool) {
	lo := floatPtr(a, 0)
	hi := floatPtr(b, 1)
	if lo == nil || hi == nil || *lo >= *hi {
		return nil, nil, false
	}
	return lo, hi, true
}

func floatPtr(s string, add float64) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v += add
	return &v
}
