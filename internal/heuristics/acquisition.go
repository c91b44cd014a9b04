package heuristics

import "strings"

// AcquisitionPhrases are checked in order; the first present phrase wins.
var AcquisitionPhrases = []string{
	"acquired by",
	"merged with",
	"taken over by",
	"sold to",
	"now part of",
}

// DetectAcquisition reports whether text says the company has been acquired.
func DetectAcquisition(text string) bool {
	_, ok := MatchAcquisition(text)
	return ok
}

// MatchAcquisition returns the first acquisition phrase found in text.
func MatchAcquisition(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, phrase := range AcquisitionPhrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}
