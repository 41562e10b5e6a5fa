// Package batch_test tests the sequential batch orchestrator.
package batch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicekate/storylab/internal/batch"
	"github.com/nicekate/storylab/internal/core"
)

var errMockGeneration = errors.New("mock generation error")

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	return testLogger
}

func succeedingOp(_ context.Context, item core.WorkItem) (core.GenerationResult, error) {
	return core.GenerationResult{
		ID:         item.Content,
		SourceText: item.Content,
		FileName:   item.Content + ".mp3",
	}, nil
}

func TestRun_AllItemsSucceed(t *testing.T) {
	t.Parallel()

	orchestrator := batch.New(newTestLogger(t))
	items := batch.Items([]string{"rain", "wind", "thunder"})

	outcome, err := orchestrator.Run(context.Background(), items, succeedingOp)
	require.NoError(t, err)

	assert.Equal(t, batch.StateCompleted, outcome.State)
	assert.Empty(t, outcome.Failures)
	require.Len(t, outcome.Results, 3)
	assert.Equal(t, "rain", outcome.Results[0].SourceText)
	assert.Equal(t, "wind", outcome.Results[1].SourceText)
	assert.Equal(t, "thunder", outcome.Results[2].SourceText)
}

func TestRun_PartialFailureKeepsGoing(t *testing.T) {
	t.Parallel()

	orchestrator := batch.New(newTestLogger(t))
	items := batch.Items([]string{"rain", "wind", "thunder", "birds"})

	op := func(ctx context.Context, item core.WorkItem) (core.GenerationResult, error) {
		if item.Index == 1 {
			return core.GenerationResult{}, errMockGeneration
		}

		return succeedingOp(ctx, item)
	}

	outcome, err := orchestrator.Run(context.Background(), items, op)
	require.NoError(t, err)

	assert.Equal(t, batch.StateCompletedWithErrors, outcome.State)

	require.Len(t, outcome.Results, 3)
	assert.Equal(t, "rain", outcome.Results[0].SourceText)
	assert.Equal(t, "thunder", outcome.Results[1].SourceText)
	assert.Equal(t, "birds", outcome.Results[2].SourceText)

	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "wind", outcome.Failures[0].Text)
	assert.Equal(t, errMockGeneration.Error(), outcome.Failures[0].ErrorMessage)
}

func TestRun_ProgressCountsAttemptsNotSuccesses(t *testing.T) {
	t.Parallel()

	var snapshots []core.BatchProgress

	orchestrator := batch.New(
		newTestLogger(t),
		batch.WithProgress(func(progress core.BatchProgress) {
			snapshots = append(snapshots, progress)
		}),
	)
	items := batch.Items([]string{"rain", "wind", "thunder"})

	op := func(ctx context.Context, item core.WorkItem) (core.GenerationResult, error) {
		if item.Index == 0 {
			return core.GenerationResult{}, errMockGeneration
		}

		return succeedingOp(ctx, item)
	}

	outcome, err := orchestrator.Run(context.Background(), items, op)
	require.NoError(t, err)
	assert.Equal(t, batch.StateCompletedWithErrors, outcome.State)

	require.Len(t, snapshots, 3)

	for i, snapshot := range snapshots {
		assert.Equal(t, 3, snapshot.Total)
		assert.Equal(t, i+1, snapshot.Completed)
	}

	// The failure on the first item is visible from the first snapshot on.
	require.Len(t, snapshots[0].Failures, 1)
	require.Len(t, snapshots[2].Failures, 1)
}

func TestRun_EmptyBatchIsInvalidInput(t *testing.T) {
	t.Parallel()

	orchestrator := batch.New(newTestLogger(t))

	_, err := orchestrator.Run(context.Background(), nil, succeedingOp)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRun_DelayAppliesBetweenItemsOnly(t *testing.T) {
	t.Parallel()

	delay := 50 * time.Millisecond
	orchestrator := batch.New(newTestLogger(t), batch.WithItemDelay(delay))
	items := batch.Items([]string{"rain", "wind", "thunder"})

	start := time.Now()

	outcome, err := orchestrator.Run(context.Background(), items, succeedingOp)
	require.NoError(t, err)
	assert.Equal(t, batch.StateCompleted, outcome.State)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 2*delay)
	assert.Less(t, elapsed, 10*delay)
}

func TestRun_CancelDuringDelay(t *testing.T) {
	t.Parallel()

	orchestrator := batch.New(newTestLogger(t), batch.WithItemDelay(time.Minute))
	items := batch.Items([]string{"rain", "wind"})

	ctx, cancel := context.WithCancel(context.Background())

	op := func(innerCtx context.Context, item core.WorkItem) (core.GenerationResult, error) {
		cancel()

		return succeedingOp(innerCtx, item)
	}

	_, err := orchestrator.Run(ctx, items, op)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestItems_PreservesOrderAndIndices(t *testing.T) {
	t.Parallel()

	items := batch.Items([]string{"a", "b", "c"})

	require.Len(t, items, 3)

	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}

	assert.Equal(t, "a", items[0].Content)
	assert.Equal(t, "c", items[2].Content)
}
