package classifier

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/JakeFAU/prospect-ranker/internal/textnorm"
)

// DefaultFolds is the cross-validation fold count.
const DefaultFolds = 5

// Sample is one labeled training document of raw scraped text.
type Sample struct {
	Company string
	Text    string
	Label   int
}

// TrainOptions configure Train.
type TrainOptions struct {
	MaxFeatures int
	Folds       int
	Fit         FitOptions
}

// ClassReport holds per-class metrics over out-of-fold predictions.
type ClassReport struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes cross-validation.
type Report struct {
	Samples        int           `json:"samples"`
	Dropped        int           `json:"dropped"`
	Folds          int           `json:"folds"`
	FoldAccuracies []float64     `json:"fold_accuracies"`
	MeanAccuracy   float64       `json:"mean_accuracy"`
	StdAccuracy    float64       `json:"std_accuracy"`
	Classes        []ClassReport `json:"classes"`
}

// String renders the report the way it is printed after training.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "samples: %d (dropped %d without text)\n", r.Samples, r.Dropped)
	if r.Folds > 0 {
		fmt.Fprintf(&b, "cross-validation accuracy (%d folds): %.3f (+/- %.3f)\n", r.Folds, r.MeanAccuracy, 2*r.StdAccuracy)
		b.WriteString("label  precision  recall  f1     support\n")
		for _, c := range r.Classes {
			fmt.Fprintf(&b, "%-6d %-10.3f %-7.3f %-6.3f %d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
		}
	} else {
		b.WriteString("cross-validation skipped: too few samples per class\n")
	}
	return b.String()
}

// ErrNoTrainingData is returned when no sample carries usable text.
var ErrNoTrainingData = errors.New("no samples with text")

// Train normalizes the samples, cross-validates, then fits the final model on
// every sample. Samples whose text normalizes to nothing are dropped.
func Train(samples []Sample, opts TrainOptions) (*Model, Report, error) {
	if opts.Folds == 0 {
		opts.Folds = DefaultFolds
	}
	var (
		docs   []string
		labels []int
		report Report
	)
	for _, s := range samples {
		if s.Label != 0 && s.Label != 1 {
			return nil, Report{}, fmt.Errorf("sample %q: label %d is not binary", s.Company, s.Label)
		}
		norm := textnorm.Normalize(s.Text)
		if strings.TrimSpace(norm) == "" {
			report.Dropped++
			continue
		}
		docs = append(docs, norm)
		labels = append(labels, s.Label)
	}
	report.Samples = len(docs)
	if len(docs) == 0 {
		return nil, report, ErrNoTrainingData
	}

	if folds := effectiveFolds(labels, opts.Folds); folds >= 2 {
		if err := crossValidate(docs, labels, folds, opts, &report); err != nil {
			return nil, report, err
		}
	}

	model, err := fit(docs, labels, opts)
	if err != nil {
		return nil, report, err
	}
	return model, report, nil
}

func fit(docs []string, labels []int, opts TrainOptions) (*Model, error) {
	v, err := FitVectorizer(docs, opts.MaxFeatures)
	if err != nil {
		return nil, fmt.Errorf("fit vectorizer: %w", err)
	}
	xs := make([]SparseVector, len(docs))
	for i, d := range docs {
		xs[i] = v.Transform(d)
	}
	l, err := FitLogistic(xs, labels, v.Dim(), opts.Fit)
	if err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}
	return NewModel(v, l, textnorm.Version)
}

// effectiveFolds caps k by the smaller class size.
func effectiveFolds(labels []int, k int) int {
	var counts [2]int
	for _, y := range labels {
		counts[y]++
	}
	return min(k, counts[0], counts[1])
}

// stratifiedFolds deals each class's samples round-robin over k folds in input order.
func stratifiedFolds(labels []int, k int) []int {
	assign := make([]int, len(labels))
	var next [2]int
	for i, y := range labels {
		assign[i] = next[y] % k
		next[y]++
	}
	return assign
}

func crossValidate(docs []string, labels []int, k int, opts TrainOptions, report *Report) error {
	assign := stratifiedFolds(labels, k)
	predicted := make([]int, len(docs))
	for fold := 0; fold < k; fold++ {
		var trainDocs, testDocs []string
		var trainLabels, testIdx []int
		for i := range docs {
			if assign[i] == fold {
				testDocs = append(testDocs, docs[i])
				testIdx = append(testIdx, i)
				continue
			}
			trainDocs = append(trainDocs, docs[i])
			trainLabels = append(trainLabels, labels[i])
		}
		m, err := fit(trainDocs, trainLabels, opts)
		if err != nil {
			return fmt.Errorf("fold %d: %w", fold+1, err)
		}
		correct := 0
		for j, d := range testDocs {
			p := m.Score(d).Label
			predicted[testIdx[j]] = p
			if p == labels[testIdx[j]] {
				correct++
			}
		}
		report.FoldAccuracies = append(report.FoldAccuracies, float64(correct)/float64(len(testDocs)))
	}
	report.Folds = k
	report.MeanAccuracy, report.StdAccuracy = meanStd(report.FoldAccuracies)
	report.Classes = classReports(labels, predicted)
	return nil
}

func classReports(truth, predicted []int) []ClassReport {
	out := make([]ClassReport, 0, 2)
	for label := 0; label <= 1; label++ {
		var tp, fp, fn int
		for i := range truth {
			switch {
			case predicted[i] == label && truth[i] == label:
				tp++
			case predicted[i] == label:
				fp++
			case truth[i] == label:
				fn++
			}
		}
		r := ClassReport{Label: label, Support: tp + fn}
		if tp+fp > 0 {
			r.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			r.Recall = float64(tp) / float64(tp+fn)
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		out = append(out, r)
	}
	return out
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
