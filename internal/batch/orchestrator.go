// Package batch drives an ordered sequence of generation work items
// through a per-item operation, tracking progress and collecting partial
// failures without letting one item abort the rest.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nicekate/storylab/internal/core"
)

// State is the terminal state of a finished batch.
type State string

const (
	// StateCompleted means every item succeeded.
	StateCompleted State = "completed"
	// StateCompletedWithErrors means the batch ran to the end but at
	// least one item failed.
	StateCompletedWithErrors State = "completed-with-errors"
)

// Operation processes one WorkItem and returns its generation result.
type Operation func(ctx context.Context, item core.WorkItem) (core.GenerationResult, error)

// ProgressFunc observes the batch after each item resolves. The progress
// value is a snapshot; callers must not retain its failure slice.
type ProgressFunc func(progress core.BatchProgress)

// Outcome aggregates a finished batch. Results are ordered by the items'
// original indices, not by completion time.
type Outcome struct {
	Results  []core.GenerationResult
	Failures []core.Failure
	State    State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithItemDelay makes the orchestrator wait between consecutive items, to
// respect upstream throughput limits.
func WithItemDelay(delay time.Duration) Option {
	return func(o *Orchestrator) {
		o.delay = delay
	}
}

// WithProgress registers a progress observer.
func WithProgress(onProgress ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.onProgress = onProgress
	}
}

// Orchestrator runs batches strictly sequentially: one item in flight at
// a time, in index order. A failed item is recorded and the loop moves
// on; nothing is ever retried automatically.
type Orchestrator struct {
	log        *logger.Logger
	delay      time.Duration
	onProgress ProgressFunc
}

// New creates an Orchestrator.
func New(log *logger.Logger, opts ...Option) *Orchestrator {
	orchestrator := &Orchestrator{
		log:        log,
		delay:      0,
		onProgress: nil,
	}

	for _, opt := range opts {
		opt(orchestrator)
	}

	return orchestrator
}

// Items builds an ordered WorkItem slice from raw contents.
func Items(contents []string) []core.WorkItem {
	items := make([]core.WorkItem, len(contents))
	for i, content := range contents {
		items[i] = core.WorkItem{Content: content, Index: i}
	}

	return items
}

// Run processes every item in index order. Completed counts attempts, not
// successes: a failing item still moves the progress forward so callers
// always see the batch advance. Only an empty batch is a top-level error.
func (o *Orchestrator) Run(ctx context.Context, items []core.WorkItem, op Operation) (Outcome, error) {
	if len(items) == 0 {
		return Outcome{}, fmt.Errorf("%w: batch contains no items", core.ErrInvalidInput)
	}

	progress := core.BatchProgress{
		Total:     len(items),
		Completed: 0,
		Failures:  nil,
	}

	results := make([]core.GenerationResult, 0, len(items))

	for i, item := range items {
		if i > 0 && o.delay > 0 {
			waitErr := o.waitBetweenItems(ctx)
			if waitErr != nil {
				return Outcome{}, waitErr
			}
		}

		result, err := op(ctx, item)
		if err != nil {
			o.log.Error("Batch item %d failed: %v", item.Index, err)
			progress.Failures = append(progress.Failures, core.Failure{
				Item:         item,
				Text:         item.Content,
				ErrorMessage: err.Error(),
			})
		} else {
			results = append(results, result)
		}

		progress.Completed++
		o.notifyProgress(progress)
	}

	state := StateCompleted
	if len(progress.Failures) > 0 {
		state = StateCompletedWithErrors
	}

	o.log.Info(
		"Batch finished: %d/%d succeeded, %d failed",
		len(results),
		progress.Total,
		len(progress.Failures),
	)

	return Outcome{
		Results:  results,
		Failures: progress.Failures,
		State:    state,
	}, nil
}

func (o *Orchestrator) waitBetweenItems(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("batch canceled while waiting between items: %w", ctx.Err())
	case <-time.After(o.delay):
		return nil
	}
}

func (o *Orchestrator) notifyProgress(progress core.BatchProgress) {
	if o.onProgress == nil {
		return
	}

	snapshot := progress
	snapshot.Failures = append([]core.Failure(nil), progress.Failures...)
	o.onProgress(snapshot)
}
