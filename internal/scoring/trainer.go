package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// TrainingStore is what the trainer reads and writes.
type TrainingStore interface {
	ListTransactions(ctx context.Context) ([]*domain.Transaction, error)
	ListFlagged(ctx context.Context) ([]*domain.FlaggedRecord, error)
	SaveModelArtifact(ctx context.Context, a *domain.ModelArtifact) error
}

// Trainer fits a logistic model over the transaction history. A
// transaction is labelled fraud when any flagged record for it says so.
type Trainer struct {
	store        TrainingStore
	scorer       *Scorer
	epochs       int
	learningRate float64
	now          func() time.Time
}

// NewTrainer creates a trainer that installs each new artifact into scorer.
func NewTrainer(store TrainingStore, scorer *Scorer, cfg domain.RetrainConfig) *Trainer {
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 200
	}
	lr := cfg.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	return &Trainer{
		store:        store,
		scorer:       scorer,
		epochs:       epochs,
		learningRate: lr,
		now:          time.Now,
	}
}

// Train builds, persists and activates a new artifact.
func (t *Trainer) Train(ctx context.Context) (*domain.ModelArtifact, error) {
	txs, err := t.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, domain.ErrNoTrainingData
	}

	flagged, err := t.store.ListFlagged(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load flagged records: %w", err)
	}
	fraud := make(map[string]bool, len(flagged))
	for _, rec := range flagged {
		if rec.IsFraud {
			fraud[rec.TxID] = true
		}
	}

	codes := EncodeDevices(txs)
	xs := make([]Features, len(txs))
	ys := make([]float64, len(txs))
	for i, tx := range txs {
		xs[i] = Extract(tx, codes)
		if fraud[tx.ID] {
			ys[i] = 1
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	means, scales := fitScaling(xs)
	weights, bias := t.fit(xs, ys, means, scales)

	trainedAt := t.now().UTC()
	a := &domain.ModelArtifact{
		Version:     fmt.Sprintf("%s-%s", trainedAt.Format("20060102T150405Z"), uuid.NewString()[:8]),
		DeviceCodes: codes,
		Weights:     weights,
		Bias:        bias,
		Threshold:   0.5,
		Means:       means,
		Scales:      scales,
		TrainedAt:   trainedAt,
		Samples:     len(txs),
	}

	if err := t.store.SaveModelArtifact(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}
	if err := t.scorer.Swap(a); err != nil {
		return nil, err
	}
	return a, nil
}

// fitScaling returns per-feature mean and standard deviation.
func fitScaling(xs []Features) (means, scales []float64) {
	means = make([]float64, domain.FeatureCount)
	scales = make([]float64, domain.FeatureCount)
	n := float64(len(xs))

	for _, x := range xs {
		for i, v := range x {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= n
	}

	for _, x := range xs {
		for i, v := range x {
			d := v - means[i]
			scales[i] += d * d
		}
	}
	for i := range scales {
		scales[i] = math.Sqrt(scales[i] / n)
		if scales[i] == 0 {
			scales[i] = 1
		}
	}
	return means, scales
}

// fit runs full-batch gradient descent on the log loss.
func (t *Trainer) fit(xs []Features, ys []float64, means, scales []float64) ([]float64, float64) {
	n := float64(len(xs))
	std := make([]Features, len(xs))
	for i, x := range xs {
		std[i] = standardize(x, means, scales)
	}

	weights := make([]float64, domain.FeatureCount)
	bias := 0.0

	for epoch := 0; epoch < t.epochs; epoch++ {
		grad := make([]float64, domain.FeatureCount)
		gradBias := 0.0

		for i, x := range std {
			z := bias
			for j, w := range weights {
				z += w * x[j]
			}
			diff := sigmoid(z) - ys[i]
			for j := range grad {
				grad[j] += diff * x[j]
			}
			gradBias += diff
		}

		for j := range weights {
			weights[j] -= t.learningRate * grad[j] / n
		}
		bias -= t.learningRate * gradBias / n
	}

	return weights, bias
}
