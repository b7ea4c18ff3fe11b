package utils_test

import (
	"context"
	"testing"
	"time"

	"github.com/robalyx/chronicle/pkg/utils"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestContextSleep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		duration       time.Duration
		cancelAfter    time.Duration
		expectedResult utils.SleepResult
	}{
		{
			name:           "sleep completes normally",
			duration:       10 * time.Millisecond,
			expectedResult: utils.SleepCompleted,
		},
		{
			name:           "context cancelled before sleep completes",
			duration:       time.Second,
			cancelAfter:    10 * time.Millisecond,
			expectedResult: utils.SleepCancelled,
		},
		{
			name:           "zero duration sleep",
			expectedResult: utils.SleepCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			if tt.cancelAfter > 0 {
				go func() {
					time.Sleep(tt.cancelAfter)
					cancel()
				}()
			}

			assert.Equal(t, tt.expectedResult, utils.ContextSleep(ctx, tt.duration))
		})
	}
}

func TestWorkerSleeps(t *testing.T) {
	t.Parallel()

	logger := zap.NewNop()

	t.Run("continue after pause", func(t *testing.T) {
		t.Parallel()

		assert.True(t, utils.IntervalSleep(t.Context(), time.Millisecond, logger, "purge"))
		assert.True(t, utils.ErrorSleep(t.Context(), time.Millisecond, logger, "purge"))
	})

	t.Run("stop when cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.False(t, utils.IntervalSleep(ctx, time.Second, logger, "purge"))
		assert.False(t, utils.ErrorSleep(ctx, time.Second, logger, "purge"))
		assert.True(t, utils.ContextGuardWithLog(ctx, logger, "stopping"))
	})

	t.Run("guard passes live context", func(t *testing.T) {
		t.Parallel()

		assert.False(t, utils.ContextGuardWithLog(t.Context(), logger, "stopping"))
	})
}
