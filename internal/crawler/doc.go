// Package crawler implements the bounded, keyword-guided website crawl that
// collects descriptive text for a company: the fetcher contracts, the page text
// extractor, and the breadth-first crawl loop with its page and time budgets.
package crawler
