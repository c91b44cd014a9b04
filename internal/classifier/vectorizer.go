package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxFeatures bounds the fitted vocabulary.
const DefaultMaxFeatures = 1000

// ErrEmptyCorpus is returned when fitting on documents that yield no terms.
var ErrEmptyCorpus = errors.New("corpus has no usable terms")

// SparseVector holds the non-zero entries of a feature vector, ordered by index.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Vectorizer maps text to L2-normalized TF-IDF vectors over a fixed vocabulary.
// A fitted Vectorizer is read-only and safe for concurrent use.
type Vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// Tokenize lowercases doc and returns its terms of two or more letters or
// digits, excluding stop words.
func Tokenize(doc string) []string {
	fields := strings.FieldsFunc(strings.ToLower(doc), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 || IsStopWord(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// FitVectorizer learns the vocabulary and inverse document frequencies of docs.
// The vocabulary keeps the maxFeatures most frequent terms across the corpus,
// ties broken alphabetically, and indexes them alphabetically.
func FitVectorizer(docs []string, maxFeatures int) (*Vectorizer, error) {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	termCounts := make(map[string]int)
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(doc) {
			termCounts[tok]++
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				docFreq[tok]++
			}
		}
	}
	if len(termCounts) == 0 {
		return nil, ErrEmptyCorpus
	}

	terms := make([]string, 0, len(termCounts))
	for term := range termCounts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if termCounts[terms[i]] != termCounts[terms[j]] {
			return termCounts[terms[i]] > termCounts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	vocabulary := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		vocabulary[term] = i
		idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return &Vectorizer{vocabulary: vocabulary, idf: idf}, nil
}

// NewVectorizer rebuilds a fitted Vectorizer from its persisted state.
func NewVectorizer(vocabulary map[string]int, idf []float64) (*Vectorizer, error) {
	if len(vocabulary) == 0 {
		return nil, ErrEmptyCorpus
	}
	if len(vocabulary) != len(idf) {
		return nil, fmt.Errorf("vocabulary size %d does not match idf size %d", len(vocabulary), len(idf))
	}
	vocab := make(map[string]int, len(vocabulary))
	used := make([]bool, len(idf))
	for term, idx := range vocabulary {
		if idx < 0 || idx >= len(idf) || used[idx] {
			return nil, fmt.Errorf("invalid vocabulary index %d for %q", idx, term)
		}
		used[idx] = true
		vocab[term] = idx
	}
	return &Vectorizer{vocabulary: vocab, idf: append([]float64(nil), idf...)}, nil
}

// Dim returns the feature dimensionality.
func (v *Vectorizer) Dim() int {
	return len(v.idf)
}

// Vocabulary returns a copy of the term-to-index map.
func (v *Vectorizer) Vocabulary() map[string]int {
	out := make(map[string]int, len(v.vocabulary))
	for k, idx := range v.vocabulary {
		out[k] = idx
	}
	return out
}

// IDF returns a copy of the inverse document frequencies.
func (v *Vectorizer) IDF() []float64 {
	return append([]float64(nil), v.idf...)
}

// Transform converts doc to its TF-IDF vector. Terms outside the vocabulary
// are ignored; a document with no known terms yields an empty vector.
func (v *Vectorizer) Transform(doc string) SparseVector {
	counts := make(map[int]float64)
	for _, tok := range Tokenize(doc) {
		if idx, ok := v.vocabulary[tok]; ok {
			counts[idx]++
		}
	}
	vec := SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Ints(vec.Indices)
	var norm float64
	for _, idx := range vec.Indices {
		w := counts[idx] * v.idf[idx]
		vec.Values = append(vec.Values, w)
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec.Values {
			vec.Values[i] /= norm
		}
	}
	return vec
}
