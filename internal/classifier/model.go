package classifier

import (
	"errors"
	"fmt"
)

// DefaultThreshold separates the predicted labels.
const DefaultThreshold = 0.5

// Result is the classification of one document.
type Result struct {
	Probability float64 `json:"probability"`
	Label       int     `json:"label"`
}

// Model pairs a fitted vectorizer with its logistic regression.
type Model struct {
	vectorizer *Vectorizer
	logistic   *Logistic
	threshold  float64
	normalizer string
}

// NewModel assembles a Model, checking the pair agrees on dimensionality.
func NewModel(v *Vectorizer, l *Logistic, normalizer string) (*Model, error) {
	if v == nil || l == nil {
		return nil, errors.New("vectorizer and classifier are both required")
	}
	if v.Dim() != len(l.Weights) {
		return nil, fmt.Errorf("vectorizer has %d features but classifier has %d weights", v.Dim(), len(l.Weights))
	}
	return &Model{vectorizer: v, logistic: l, threshold: DefaultThreshold, normalizer: normalizer}, nil
}

// Score classifies already-normalized text.
func (m *Model) Score(normalized string) Result {
	p := m.logistic.Probability(m.vectorizer.Transform(normalized))
	label := 0
	if p >= m.threshold {
		label = 1
	}
	return Result{Probability: p, Label: label}
}

// Normalizer identifies the text normalization the model was trained with.
func (m *Model) Normalizer() string {
	return m.normalizer
}

// Vectorizer returns the model's fitted vectorizer.
func (m *Model) Vectorizer() *Vectorizer {
	return m.vectorizer
}
