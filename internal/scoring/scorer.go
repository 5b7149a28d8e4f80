package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Verdict is the scorer's answer for one transaction.
type Verdict struct {
	Fraud       bool    `json:"fraud"`
	Probability float64 `json:"probability"`
	Version     string  `json:"version"`
}

// Scorer scores transactions with the currently loaded artifact.
// Swapping the artifact is a single pointer store, so concurrent
// Score calls see either the old model or the new one.
type Scorer struct {
	artifact atomic.Pointer[domain.ModelArtifact]
}

// NewScorer returns a scorer with no artifact loaded.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Swap installs a as the active artifact.
func (s *Scorer) Swap(a *domain.ModelArtifact) error {
	if !a.Valid() {
		return fmt.Errorf("%w: malformed artifact", domain.ErrScorerUnavailable)
	}
	s.artifact.Store(a)
	return nil
}

// Current returns the active artifact or nil.
func (s *Scorer) Current() *domain.ModelArtifact {
	return s.artifact.Load()
}

// Score returns the verdict for tx. It fails with domain.ErrScorerUnavailable
// when no usable artifact is loaded; callers decide how to degrade.
func (s *Scorer) Score(ctx context.Context, tx *domain.Transaction) (Verdict, error) {
	a := s.artifact.Load()
	if a == nil {
		return Verdict{}, fmt.Errorf("%w: no artifact loaded", domain.ErrScorerUnavailable)
	}
	if !a.Valid() {
		return Verdict{}, fmt.Errorf("%w: artifact %s is malformed", domain.ErrScorerUnavailable, a.Version)
	}

	p := probability(a, Extract(tx, a.DeviceCodes))
	if math.IsNaN(p) {
		return Verdict{}, fmt.Errorf("%w: artifact %s produced NaN", domain.ErrScorerUnavailable, a.Version)
	}

	return Verdict{
		Fraud:       p >= a.Threshold,
		Probability: p,
		Version:     a.Version,
	}, nil
}

func probability(a *domain.ModelArtifact, f Features) float64 {
	x := standardize(f, a.Means, a.Scales)
	z := a.Bias
	for i, w := range a.Weights {
		z += w * x[i]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// ArtifactStore loads persisted artifacts.
type ArtifactStore interface {
	LatestModelArtifact(ctx context.Context) (*domain.ModelArtifact, error)
}

// LoadLatest swaps in the newest persisted artifact when its version
// differs from the active one. A missing artifact is not an error.
func (s *Scorer) LoadLatest(ctx context.Context, store ArtifactStore) error {
	a, err := store.LatestModelArtifact(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Info("no model artifact stored, scorer stays unavailable")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load model artifact: %w", err)
	}

	if cur := s.Current(); cur != nil && cur.Version == a.Version {
		return nil
	}
	if err := s.Swap(a); err != nil {
		return err
	}

	slog.Info("model artifact loaded",
		"version", a.Version,
		"samples", a.Samples,
		"trained_at", a.TrainedAt,
	)
	return nil
}
