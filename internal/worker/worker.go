// Package worker runs model retraining off the screening path.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// ErrStopped is returned by Run after Stop.
var ErrStopped = errors.New("retrain worker stopped")

// Trainer builds and activates a new model artifact.
type Trainer interface {
	Train(ctx context.Context) (*domain.ModelArtifact, error)
}

// Reloader refreshes the active model after another process retrained it.
type Reloader func(ctx context.Context) error

// Worker consumes retrain signals from the EventBus. At most one job runs
// at a time; a signal that arrives while a job is running is dropped.
type Worker struct {
	bus     domain.EventBus
	trainer Trainer
	reload  Reloader
	timeout time.Duration

	running   atomic.Bool
	processed atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64

	mu            sync.Mutex
	subscriptions []domain.Subscription
	stopped       bool
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	metrics       metrics.Retrain
}

// Config holds worker configuration.
type Config struct {
	// Timeout bounds a single retrain job.
	Timeout time.Duration

	// Reload is called for every model-updated event. Optional.
	Reload Reloader
}

// NewWorker creates a retrain worker.
func NewWorker(bus domain.EventBus, trainer Trainer, cfg Config) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		trainer: trainer,
		reload:  cfg.Reload,
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics.NewRetrain(),
	}
}

// Start subscribes to retrain signals and, when a reloader is set, to
// model updates.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRetrainRequested, w.handleSignal)
	if err != nil {
		return err
	}
	w.addSubscription(sub)

	if w.reload != nil {
		sub, err := w.bus.Subscribe(w.ctx, domain.TopicModelUpdated, w.handleModelUpdated)
		if err != nil {
			return err
		}
		w.addSubscription(sub)
	}

	slog.Info("retrain worker started",
		"topic", domain.TopicRetrainRequested,
		"timeout", w.timeout.String(),
	)
	return nil
}

func (w *Worker) addSubscription(sub domain.Subscription) {
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
}

// handleSignal returns immediately; the job runs in its own goroutine.
func (w *Worker) handleSignal(ctx context.Context, msg *domain.Message) error {
	var signal domain.RetrainSignal
	if err := json.Unmarshal(msg.Payload, &signal); err != nil {
		slog.Error("failed to parse retrain signal",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := w.Run(signal); err != nil {
		slog.Info("retrain signal dropped",
			"reason", signal.Reason,
			"error", err,
		)
	}
	return nil
}

// Run starts a retrain job for signal unless one is already running, in
// which case it returns domain.ErrRetrainInProgress.
func (w *Worker) Run(signal domain.RetrainSignal) error {
	if !w.running.CompareAndSwap(false, true) {
		w.dropped.Add(1)
		w.metrics.ObserveSignal("dropped")
		return domain.ErrRetrainInProgress
	}

	// Add under mu so it never races the Wait in Stop
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.running.Store(false)
		return ErrStopped
	}
	w.wg.Add(1)
	w.mu.Unlock()

	w.metrics.ObserveSignal("accepted")
	go func() {
		defer w.wg.Done()
		defer w.running.Store(false)
		w.train(signal)
	}()
	return nil
}

func (w *Worker) train(signal domain.RetrainSignal) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	artifact, err := w.trainer.Train(ctx)
	samples := 0
	if artifact != nil {
		samples = artifact.Samples
	}
	w.metrics.ObserveRun(err, samples, start)

	if err != nil {
		w.failed.Add(1)
		level := slog.LevelError
		if errors.Is(err, domain.ErrNoTrainingData) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "retrain failed, previous model stays active",
			"reason", signal.Reason,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	w.processed.Add(1)

	slog.Info("retrain completed",
		"reason", signal.Reason,
		"version", artifact.Version,
		"samples", artifact.Samples,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := w.bus.Publish(w.ctx, domain.TopicModelUpdated, []byte(artifact.Version)); err != nil {
		slog.Warn("failed to announce model update",
			"version", artifact.Version,
			"error", err,
		)
	}
}

func (w *Worker) handleModelUpdated(ctx context.Context, msg *domain.Message) error {
	if err := w.reload(ctx); err != nil {
		slog.Error("failed to reload model",
			"version", string(msg.Payload),
			"error", err,
		)
		return err
	}
	return nil
}

// Running reports whether a retrain job is in progress.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Wait blocks until every started job has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Stop unsubscribes, cancels any running job and waits for it to exit.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.stopped = true
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	w.cancel()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()
	slog.Info("retrain worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int   `json:"subscriptionCount"`
	Running           bool  `json:"running"`
	Completed         int64 `json:"completed"`
	Failed            int64 `json:"failed"`
	Dropped           int64 `json:"dropped"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	n := len(w.subscriptions)
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: n,
		Running:           w.running.Load(),
		Completed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		Dropped:           w.dropped.Load(),
	}
}
