package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/JakeFAU/prospect-ranker/internal/hash/sha256"
	"github.com/JakeFAU/prospect-ranker/internal/storage"
)

// ArtifactFormatVersion is bumped whenever the payload layout changes.
const ArtifactFormatVersion = 1

// ErrArtifactNotFound is returned by stores when no artifact exists at a path.
var ErrArtifactNotFound = storage.ErrNotFound

// ArtifactStore persists model artifacts.
type ArtifactStore = storage.BlobStore

// ModelLoadError reports a missing or unusable model artifact. Scoring must
// not start when loading fails.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

type envelope struct {
	Checksum string          `json:"checksum"`
	Payload  json.RawMessage `json:"payload"`
}

type payload struct {
	FormatVersion int            `json:"format_version"`
	Normalizer    string         `json:"normalizer"`
	CreatedAt     time.Time      `json:"created_at"`
	Vocabulary    map[string]int `json:"vocabulary"`
	IDF           []float64      `json:"idf"`
	Weights       []float64      `json:"weights"`
	Bias          float64        `json:"bias"`
	Threshold     float64        `json:"threshold"`
}

// Marshal serializes m as a checksummed JSON artifact.
func (m *Model) Marshal(createdAt time.Time) ([]byte, error) {
	body, err := json.Marshal(payload{
		FormatVersion: ArtifactFormatVersion,
		Normalizer:    m.normalizer,
		CreatedAt:     createdAt.UTC(),
		Vocabulary:    m.vectorizer.vocabulary,
		IDF:           m.vectorizer.idf,
		Weights:       m.logistic.Weights,
		Bias:          m.logistic.Bias,
		Threshold:     m.threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal model payload: %w", err)
	}
	sum, err := sha256.New().Hash(body)
	if err != nil {
		return nil, fmt.Errorf("hash model payload: %w", err)
	}
	out, err := json.Marshal(envelope{Checksum: sum, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("marshal model artifact: %w", err)
	}
	return out, nil
}

// Unmarshal rebuilds a Model from an artifact, rejecting corrupt artifacts and
// ones trained with a different normalizer.
func Unmarshal(data []byte, wantNormalizer string) (*Model, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	sum, err := sha256.New().Hash(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}
	if sum != env.Checksum {
		return nil, fmt.Errorf("checksum mismatch: artifact says %q, payload hashes to %q", env.Checksum, sum)
	}
	var p payload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p.FormatVersion != ArtifactFormatVersion {
		return nil, fmt.Errorf("unsupported artifact format %d", p.FormatVersion)
	}
	if wantNormalizer != "" && p.Normalizer != wantNormalizer {
		return nil, fmt.Errorf("model trained with normalizer %q, running %q", p.Normalizer, wantNormalizer)
	}
	v, err := NewVectorizer(p.Vocabulary, p.IDF)
	if err != nil {
		return nil, fmt.Errorf("rebuild vectorizer: %w", err)
	}
	m, err := NewModel(v, &Logistic{Weights: p.Weights, Bias: p.Bias}, p.Normalizer)
	if err != nil {
		return nil, err
	}
	if p.Threshold > 0 && p.Threshold < 1 {
		m.threshold = p.Threshold
	}
	return m, nil
}

// Save writes m to store at path and returns the stored URI.
func Save(ctx context.Context, store ArtifactStore, path string, m *Model, createdAt time.Time) (string, error) {
	data, err := m.Marshal(createdAt)
	if err != nil {
		return "", err
	}
	uri, err := store.PutObject(ctx, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store model: %w", err)
	}
	return uri, nil
}

// Load reads and validates the artifact at path. Every failure is a
// *ModelLoadError.
func Load(ctx context.Context, store ArtifactStore, path string, wantNormalizer string) (*Model, error) {
	rc, err := store.GetObject(ctx, path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: fmt.Errorf("read artifact: %w", err)}
	}
	m, err := Unmarshal(data, wantNormalizer)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	return m, nil
}
