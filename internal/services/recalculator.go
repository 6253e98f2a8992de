package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"risparmio/internal/core"
)

// RecalculatorConfig holds configuration for the plan recalculator.
type RecalculatorConfig struct {
	// Interval is how often plans are recomputed regardless of activity
	// (default: 5m).
	Interval time.Duration
}

// DefaultRecalculatorConfig returns sensible defaults.
func DefaultRecalculatorConfig() RecalculatorConfig {
	return RecalculatorConfig{Interval: 5 * time.Minute}
}

// Recalculator recomputes the current month's plans in the background. It is
// the RecomputeTrigger the allocation ledger fires after a mutation: triggers
// never block the mutating call, and because the recompute is a full
// idempotent pass, coalescing or reordering them is harmless.
type Recalculator struct {
	plans  *PlanService
	config RecalculatorConfig
	now    Clock

	dirty chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecalculator(plans *PlanService, config RecalculatorConfig, now Clock) *Recalculator {
	if config.Interval <= 0 {
		config.Interval = DefaultRecalculatorConfig().Interval
	}
	if now == nil {
		now = time.Now
	}
	return &Recalculator{
		plans:  plans,
		config: config,
		now:    now,
		dirty:  make(chan struct{}, 1),
	}
}

// TriggerRecompute marks the current month dirty. Never blocks; a trigger
// arriving while one is already pending is coalesced into it.
func (r *Recalculator) TriggerRecompute(assetID string, goalIDs []string) {
	select {
	case r.dirty <- struct{}{}:
	default:
	}
}

// Start begins the recompute loop. Returns an error if already running.
func (r *Recalculator) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("recalculator is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Plan recalculator started", "interval", r.config.Interval)
	return nil
}

// Stop gracefully stops the recalculator and waits for completion.
func (r *Recalculator) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		slog.InfoContext(ctx, "Plan recalculator stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Plan recalculator stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

// IsRunning returns whether the recalculator loop is active.
func (r *Recalculator) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Recalculator) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-r.dirty:
			r.recompute(ctx)
		case <-ticker.C:
			r.recompute(ctx)
		}
	}
}

func (r *Recalculator) recompute(ctx context.Context) {
	month := core.MonthOf(r.now())
	if err := r.plans.RecomputeMonth(ctx, month); err != nil {
		slog.ErrorContext(ctx, "Plan recompute failed",
			"month", month.String(), "error", err)
	}
}
