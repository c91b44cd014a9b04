package heuristics

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	amountExpr = `((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?)`
	unitExpr   = `(million|billion|mm|bn|m|b)\b`
)

// revenuePatterns are tried in order. Each captures an amount and a unit.
var revenuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)annual\s+revenues?[^$\d]{0,20}\$?\s*` + amountExpr + `\s*` + unitExpr),
	regexp.MustCompile(`(?i)revenues?\s+(?:is|was|of)\s+(?:about\s+|approximately\s+|over\s+)?\$?\s*` + amountExpr + `\s*` + unitExpr),
	regexp.MustCompile(`(?i)\$\s*` + amountExpr + `\s*` + unitExpr),
	regexp.MustCompile(`(?i)\bUSD\s*` + amountExpr + `\s*` + unitExpr),
}

// ExtractRevenue returns the first revenue figure found in text, in millions.
func ExtractRevenue(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	for _, pattern := range revenuePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, ok := toMillions(m[1], m[2]); ok {
			return v, true
		}
	}
	return 0, false
}

func toMillions(amount, unit string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(unit) {
	case "billion", "bn", "b":
		return v * 1000, true
	default:
		return v, true
	}
}
