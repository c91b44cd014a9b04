// Package output writes ranking and evaluation results and fans them out to
// the configured sinks.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
)

var (
	// RankedHeader is the fixed column order of a ranking file.
	RankedHeader = []string{"final_score", "company_name", "relevance_score", "revenue", "website"}
	// EvaluationHeader is the column order of an evaluation file.
	EvaluationHeader = []string{"company_name", "predicted_relevance", "relevance_probability"}
)

// WriteRanked writes ranked companies in the order given. relevance_score is
// rounded to two decimals and left blank when the company was not classified;
// revenue is written as 0 when it is unknown.
func WriteRanked(w io.Writer, ranked []pipeline.RankedCompany) error {
	rows := make([][]string, 0, len(ranked))
	for _, rc := range ranked {
		relevance := ""
		if rc.Classification != nil {
			relevance = formatFloat(math.Round(rc.Classification.Probability*100) / 100)
		}
		revenue := "0"
		if rc.Signals.RevenueMillions != nil {
			revenue = formatFloat(*rc.Signals.RevenueMillions)
		}
		rows = append(rows, []string{
			formatFloat(rc.FinalScore),
			rc.Company.Name,
			relevance,
			revenue,
			rc.Website,
		})
	}
	return writeAll(w, RankedHeader, rows)
}

// WriteEvaluation writes evaluation predictions. predicted_relevance is blank
// for companies whose crawl produced no text.
func WriteEvaluation(w io.Writer, preds []pipeline.Prediction) error {
	rows := make([][]string, 0, len(preds))
	for _, p := range preds {
		label := ""
		if p.Label != nil {
			label = strconv.Itoa(*p.Label)
		}
		rows = append(rows, []string{p.Company.Name, label, formatFloat(p.Probability)})
	}
	return writeAll(w, EvaluationHeader, rows)
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
