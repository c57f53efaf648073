// Package orchestrator runs independent per-line units of work under a
// global concurrency limit with isolated failures and a single retry pass.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Unit is one independent piece of work, typically wrapping a measurement
// session or a scrape session for one line. The returned error is the only
// signal the orchestrator looks at; cause classification stays inside the
// unit's own logging.
type Unit struct {
	ID  string
	Run func(ctx context.Context) error
}

// Outcome is the terminal verdict for one unit. Every submitted unit gets
// exactly one Outcome, failed or not; none are dropped.
type Outcome struct {
	ID       string
	Attempts int
	Err      error
}

// Failed reports whether the unit still failed after its last attempt.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Orchestrator bounds concurrent units with a counting semaphore and retries
// the failed subset exactly once. The semaphore is the only state shared
// between concurrently running units; failure sets are assembled from
// per-unit outcome slots after each pass completes, never by units mutating
// a shared collection.
type Orchestrator struct {
	limit  int
	logger *slog.Logger
}

// New returns an orchestrator running at most limit units concurrently.
// limit < 1 is a configuration error.
func New(limit int, logger *slog.Logger) (*Orchestrator, error) {
	if limit < 1 {
		return nil, fmt.Errorf("concurrency limit must be at least 1, got %d", limit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{limit: limit, logger: logger}, nil
}

// Run executes all units, then exactly one more bounded pass over the
// subset that failed. Units failing both passes are surfaced as failed
// outcomes; they are never retried a third time. The returned slice has one
// entry per input unit, in input order.
func (o *Orchestrator) Run(ctx context.Context, units []Unit) []Outcome {
	outcomes := o.runPass(ctx, units)

	var failedIdx []int
	for i, outcome := range outcomes {
		if outcome.Failed() {
			failedIdx = append(failedIdx, i)
		}
	}

	if len(failedIdx) == 0 {
		return outcomes
	}

	o.logger.Info("retrying failed units", "count", len(failedIdx))

	retryUnits := make([]Unit, len(failedIdx))
	for i, idx := range failedIdx {
		retryUnits[i] = units[idx]
	}

	retryOutcomes := o.runPass(ctx, retryUnits)
	for i, idx := range failedIdx {
		outcomes[idx].Attempts++
		outcomes[idx].Err = retryOutcomes[i].Err
	}

	return outcomes
}

// runPass fans out all units at once; the semaphore keeps at most limit of
// them actually running. Each goroutine writes only its own outcome slot.
func (o *Orchestrator) runPass(ctx context.Context, units []Unit) []Outcome {
	outcomes := make([]Outcome, len(units))
	sem := make(chan struct{}, o.limit)

	var wg sync.WaitGroup
	for i, unit := range units {
		wg.Add(1)
		go func(i int, unit Unit) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = Outcome{ID: unit.ID, Attempts: 1, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			err := unit.Run(ctx)
			if err != nil {
				o.logger.Debug("unit failed", "unit", unit.ID, "error", err)
			}
			outcomes[i] = Outcome{ID: unit.ID, Attempts: 1, Err: err}
		}(i, unit)
	}
	wg.Wait()

	return outcomes
}
