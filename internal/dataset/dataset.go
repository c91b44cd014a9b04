// Package dataset reads company lists and writes training data as CSV.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
)

// Column names shared by the input and training files.
const (
	ColumnCompany = "company_name"
	ColumnWebsite = "website_url"
	ColumnLabel   = "label_relevance"
	ColumnText    = "scraped_text"
)

// TrainingHeader is the column order of a training file.
var TrainingHeader = []string{ColumnCompany, ColumnWebsite, ColumnLabel, ColumnText}

// ErrMissingColumn is returned when the header lacks company_name.
var ErrMissingColumn = errors.New("dataset: missing column")

// Row is one company read from a CSV file. Text is set only when the file
// carries a scraped_text column.
type Row struct {
	Record pipeline.CompanyRecord
	Text   string
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// Read parses a headed CSV. Columns are located by name, so extra columns are
// ignored. Rows repeating the header and rows without a company name are
// skipped. Company names are normalized.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)
	if _, ok := cols[ColumnCompany]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnCompany)
	}

	var rows []Row
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		name := field(ColumnCompany)
		if name == "" || strings.EqualFold(name, ColumnCompany) {
			continue
		}
		label, err := parseLabel(field(ColumnLabel))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, Row{
			Record: pipeline.CompanyRecord{
				Name:    pipeline.NormalizeCompanyName(name),
				SeedURL: field(ColumnWebsite),
				Label:   label,
			},
			Text: field(ColumnText),
		})
	}
	return rows, nil
}

// Records drops the scraped text.
func Records(rows []Row) []pipeline.CompanyRecord {
	out := make([]pipeline.CompanyRecord, len(rows))
	for i, row := range rows {
		out[i] = row.Record
	}
	return out
}

// Samples converts labeled rows into training samples. Unlabeled rows are
// skipped.
func Samples(rows []Row) []classifier.Sample {
	out := make([]classifier.Sample, 0, len(rows))
	for _, row := range rows {
		if row.Record.Label == nil {
			continue
		}
		out = append(out, classifier.Sample{
			Company: row.Record.Name,
			Text:    row.Text,
			Label:   *row.Record.Label,
		})
	}
	return out
}

// WriteTraining writes prepared rows in TrainingHeader order.
func WriteTraining(w io.Writer, rows []pipeline.TrainingRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TrainingHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		label := ""
		if row.Company.Label != nil {
			label = strconv.Itoa(*row.Company.Label)
		}
		if err := cw.Write([]string{row.Company.Name, row.Company.SeedURL, label, row.Text}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

// parseLabel accepts 0 and 1 in integer or float spelling. Blank means
// unlabeled.
func parseLabel(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || (f != 0 && f != 1) {
		return nil, fmt.Errorf("invalid %s %q", ColumnLabel, raw)
	}
	v := int(f)
	return &v, nil
}
