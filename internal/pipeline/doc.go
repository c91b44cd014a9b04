// Package pipeline sequences discovery, crawling, classification, heuristic
// extraction and score fusion over a batch of companies.
package pipeline
