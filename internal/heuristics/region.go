package heuristics

import (
	"fmt"
	"regexp"
	"strings"
)

// Region describes the indicators used to decide whether text places a
// company's headquarters inside a geographic region.
type Region struct {
	Name          string   `mapstructure:"name"`
	Abbreviations []string `mapstructure:"abbreviations"`
	Cities        []string `mapstructure:"cities"`
	// ZIPPrefixes match five-digit ZIP tokens by leading digits.
	ZIPPrefixes []string `mapstructure:"zip_prefixes"`
}

// California is the default target region.
var California = Region{
	Name:          "california",
	Abbreviations: []string{"ca"},
	Cities: []string{
		"los angeles", "san diego", "san jose", "san francisco", "oakland",
		"irvine", "anaheim", "pasadena", "fremont", "santa clara",
		"santa ana", "riverside", "burbank",
	},
	ZIPPrefixes: []string{"9"},
}

// RegionMatcher is a compiled Region. It is safe for concurrent use.
type RegionMatcher struct {
	region  Region
	pattern *regexp.Regexp
}

// NewRegionMatcher compiles r.
func NewRegionMatcher(r Region) (*RegionMatcher, error) {
	var alts []string
	if name := strings.TrimSpace(r.Name); name != "" {
		alts = append(alts, `\b`+regexp.QuoteMeta(strings.ToLower(name))+`\b`)
	}
	for _, abbr := range r.Abbreviations {
		if abbr = strings.TrimSpace(abbr); abbr != "" {
			alts = append(alts, `\b`+regexp.QuoteMeta(strings.ToLower(abbr))+`\b`)
		}
	}
	for _, city := range r.Cities {
		if city = strings.TrimSpace(city); city != "" {
			alts = append(alts, regexp.QuoteMeta(strings.ToLower(city)))
		}
	}
	for _, prefix := range r.ZIPPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if len(prefix) > 5 || strings.Trim(prefix, "0123456789") != "" {
			return nil, fmt.Errorf("region %q: invalid zip prefix %q", r.Name, prefix)
		}
		alts = append(alts, fmt.Sprintf(`\b%s\d{%d}\b`, prefix, 5-len(prefix)))
	}
	if len(alts) == 0 {
		return nil, fmt.Errorf("region %q has no indicators", r.Name)
	}
	pattern, err := regexp.Compile(strings.Join(alts, "|"))
	if err != nil {
		return nil, fmt.Errorf("compile region %q: %w", r.Name, err)
	}
	return &RegionMatcher{region: r, pattern: pattern}, nil
}

// MustNewRegionMatcher is NewRegionMatcher that panics on error.
func MustNewRegionMatcher(r Region) *RegionMatcher {
	m, err := NewRegionMatcher(r)
	if err != nil {
		panic(err)
	}
	return m
}

// Region returns the definition m was compiled from.
func (m *RegionMatcher) Region() Region {
	return m.region
}

// Match reports whether text places the company in the region. It returns nil
// when text is empty, meaning the check could not be made.
func (m *RegionMatcher) Match(text string) *bool {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	found := m.pattern.MatchString(strings.ToLower(text))
	return &found
}
