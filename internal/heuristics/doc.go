// Package heuristics extracts rule-based signals from raw scraped company text:
// acquisition status, a revenue figure and whether the headquarters appear to
// sit in a target region. Misses are represented as absent values, never errors.
package heuristics
