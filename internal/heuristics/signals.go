package heuristics

// Signals are the heuristic facts extracted for one company. Nil pointers are
// absent values.
type Signals struct {
	Acquired          bool     `json:"acquired"`
	AcquisitionPhrase string   `json:"acquisition_phrase,omitempty"`
	RevenueMillions   *float64 `json:"revenue_millions,omitempty"`
	HQInRegion        *bool    `json:"hq_in_region,omitempty"`
}

// HasRevenue reports whether a revenue figure was found.
func (s Signals) HasRevenue() bool {
	return s.RevenueMillions != nil
}

// Extractor bundles the extractors applied to raw scraped text.
type Extractor struct {
	region *RegionMatcher
}

// NewExtractor returns an Extractor. A nil region disables the HQ check.
func NewExtractor(region *RegionMatcher) *Extractor {
	return &Extractor{region: region}
}

// Extract runs every extractor over text. Empty text yields empty signals.
func (e *Extractor) Extract(text string) Signals {
	var s Signals
	if phrase, ok := MatchAcquisition(text); ok {
		s.Acquired = true
		s.AcquisitionPhrase = phrase
	}
	if v, ok := ExtractRevenue(text); ok {
		s.RevenueMillions = &v
	}
	if e != nil && e.region != nil {
		s.HQInRegion = e.region.Match(text)
	}
	return s
}
