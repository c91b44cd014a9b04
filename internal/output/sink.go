package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
)

// Sink receives the ranked companies of one run.
type Sink interface {
	Write(ctx context.Context, runID string, ranked []pipeline.RankedCompany) error
}

// Publisher sends one message with attributes.
type Publisher interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) (string, error)
}

// RunIDAttribute names the message attribute carrying the run ID.
const RunIDAttribute = "run_id"

// CSVSink writes the ranking to a file, replacing any previous content.
type CSVSink struct {
	Path string
}

// Write implements Sink.
func (s CSVSink) Write(_ context.Context, _ string, ranked []pipeline.RankedCompany) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("create ranking file: %w", err)
	}
	if err := WriteRanked(f, ranked); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close ranking file: %w", err)
	}
	return nil
}

// PublisherSink publishes one message per ranked company with the run ID and
// the company's rank as attributes.
type PublisherSink struct {
	Publisher Publisher
}

// Write implements Sink. It stops at the first failed publish.
func (s PublisherSink) Write(ctx context.Context, runID string, ranked []pipeline.RankedCompany) error {
	for i, rc := range ranked {
		attrs := map[string]string{
			RunIDAttribute: runID,
			"rank":         fmt.Sprint(i + 1),
		}
		if _, err := s.Publisher.Publish(ctx, rc, attrs); err != nil {
			return fmt.Errorf("publish %q: %w", rc.Company.Name, err)
		}
	}
	return nil
}

// MultiSink writes to every sink in order and joins their errors, so one
// failing destination does not hide results from the others.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink returns a MultiSink. A nil logger is replaced with a no-op.
func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiSink{sinks: sinks, logger: logger}
}

// Write implements Sink.
func (m *MultiSink) Write(ctx context.Context, runID string, ranked []pipeline.RankedCompany) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, runID, ranked); err != nil {
			m.logger.Error("sink write failed",
				zap.String("run_id", runID),
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
