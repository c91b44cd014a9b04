package discovery

import "context"

// Static resolves websites and revenue from fixed tables, keyed by company
// name. Missing entries are "not found", never errors.
type Static struct {
	Websites map[string]string
	Revenue  map[string]float64
}

// DiscoverWebsite implements pipeline.WebsiteDiscoverer.
func (s Static) DiscoverWebsite(_ context.Context, company string) (string, error) {
	return s.Websites[company], nil
}

// LookupRevenue implements pipeline.RevenueLookup.
func (s Static) LookupRevenue(_ context.Context, company string) (float64, bool, error) {
	v, ok := s.Revenue[company]
	return v, ok, nil
}
