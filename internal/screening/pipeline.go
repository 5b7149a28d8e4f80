// Package screening runs one transaction through rules, model, persistence
// and the automatic responses.
package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

var tracer = otel.Tracer("kestrel-screening")

// RuleEvaluator returns the reasons of every rule tx matches.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, tx *domain.Transaction) ([]string, error)
}

// ModelScorer classifies a transaction. Any error is treated as
// domain.ErrScorerUnavailable and the pipeline continues without it.
type ModelScorer interface {
	Score(ctx context.Context, tx *domain.Transaction) (scoring.Verdict, error)
}

// Blocker is the block-list view the pipeline needs.
type Blocker interface {
	IsBlocked(ctx context.Context, upiID string) (bool, error)
	Block(ctx context.Context, upiID, reason string) error
}

// Store persists a transaction together with its flagged record.
type Store interface {
	SaveScreening(ctx context.Context, tx *domain.Transaction, rec *domain.FlaggedRecord) error
}

// FraudCounter is incremented once per fraud verdict.
type FraudCounter interface {
	Increment(ctx context.Context) bool
}

// Pipeline screens transactions. It is safe for concurrent use; all
// shared state lives behind Blocker, Store and FraudCounter.
type Pipeline struct {
	rules   RuleEvaluator
	scorer  ModelScorer
	blocks  Blocker
	store   Store
	counter FraudCounter

	now     func() time.Time
	newID   func() string
	metrics metrics.Screening
}

// NewPipeline wires the screening stages. scorer may be nil.
func NewPipeline(rules RuleEvaluator, scorer ModelScorer, blocks Blocker, store Store, counter FraudCounter) *Pipeline {
	return &Pipeline{
		rules:   rules,
		scorer:  scorer,
		blocks:  blocks,
		store:   store,
		counter: counter,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		metrics: metrics.NewScreening(),
	}
}

// Submit validates req and screens it. Validation failures return
// domain.ErrInvalidTimestamp or domain.ErrInvalidInput before any side
// effect.
func (p *Pipeline) Submit(ctx context.Context, req *domain.ScreeningRequest) (*domain.ScreeningResult, error) {
	tx, err := req.ToTransaction(p.newID(), p.now())
	if err != nil {
		p.metrics.ObserveScreening("rejected", nil, p.now())
		return nil, err
	}
	return p.Screen(ctx, tx)
}

// Screen runs an already validated transaction through the pipeline.
//
// A store failure while reading the block list or persisting the result
// returns domain.ErrStoreUnavailable; in that case nothing is blocked and
// the fraud counter is untouched. Blocking is best effort and never
// changes the verdict.
func (p *Pipeline) Screen(ctx context.Context, tx *domain.Transaction) (*domain.ScreeningResult, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "screening.Screen",
		trace.WithAttributes(
			attribute.String("tx.id", tx.ID),
			attribute.String("tx.device", tx.Device),
		),
	)
	defer span.End()

	reasons, err := p.rules.Evaluate(ctx, tx)
	if err != nil {
		return nil, p.fail(span, tx, start, err)
	}

	if p.scoreModel(ctx, tx) {
		reasons = append(reasons, domain.ReasonModel)
	}

	isFraud := len(reasons) > 0
	rec := domain.NewFlaggedRecord(p.newID(), tx, reasons, domain.SourceRealtime, p.now())

	if err := p.store.SaveScreening(ctx, tx, rec); err != nil {
		return nil, p.fail(span, tx, start, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err))
	}

	if isFraud {
		p.blockSender(ctx, tx.Sender, reasons)
		if p.counter.Increment(ctx) {
			span.AddEvent("retrain threshold crossed")
		}
	}

	outcome := "legit"
	if isFraud {
		outcome = "fraud"
	}
	p.metrics.ObserveScreening(outcome, reasons, start)
	span.SetAttributes(attribute.Bool("tx.is_fraud", isFraud))

	slog.Debug("transaction screened",
		"tx_id", tx.ID,
		"sender", tx.Sender,
		"is_fraud", isFraud,
		"reasons", reasons,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if !isFraud {
		reasons = []string{domain.ReasonLegit}
	}
	return &domain.ScreeningResult{
		TransactionID: tx.ID,
		IsFraud:       isFraud,
		Reasons:       reasons,
	}, nil
}

// scoreModel reports the model verdict. Scorer failures fail open.
func (p *Pipeline) scoreModel(ctx context.Context, tx *domain.Transaction) bool {
	if p.scorer == nil {
		return false
	}

	verdict, err := p.scorer.Score(ctx, tx)
	if err != nil {
		p.metrics.ObserveScorerFailure()
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrScorerUnavailable) {
			level = slog.LevelDebug
		}
		slog.Log(ctx, level, "scorer failed, using rule reasons only",
			"tx_id", tx.ID,
			"error", err,
		)
		return false
	}
	return verdict.Fraud
}

func (p *Pipeline) blockSender(ctx context.Context, sender string, reasons []string) {
	blocked, err := p.blocks.IsBlocked(ctx, sender)
	if err != nil {
		slog.Warn("block list lookup failed, sender not blocked",
			"upi_id", sender,
			"error", err,
		)
		return
	}
	if blocked {
		return
	}

	if err := p.blocks.Block(ctx, sender, strings.Join(reasons, "; ")); err != nil {
		slog.Warn("failed to block sender",
			"upi_id", sender,
			"error", err,
		)
	}
}

func (p *Pipeline) fail(span trace.Span, tx *domain.Transaction, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.metrics.ObserveScreening("error", nil, start)
	slog.Error("screening failed",
		"tx_id", tx.ID,
		"error", err,
	)
	return err
}
