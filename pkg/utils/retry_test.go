package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robalyx/chronicle/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTemporary = errors.New("temporary error")
	errNotFound  = errors.New("not found")
)

func testRetryOptions() utils.RetryOptions {
	return utils.RetryOptions{
		MaxElapsedTime:  100 * time.Millisecond,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		operation      func(calls int) (string, error)
		expectedCalls  int
		expectedResult string
		expectedErr    error
	}{
		{
			name: "succeeds first try",
			operation: func(_ int) (string, error) {
				return "ok", nil
			},
			expectedCalls:  1,
			expectedResult: "ok",
		},
		{
			name: "succeeds after retries",
			operation: func(calls int) (string, error) {
				if calls < 3 {
					return "", errTemporary
				}
				return "ok", nil
			},
			expectedCalls:  3,
			expectedResult: "ok",
		},
		{
			name: "fails all retries",
			operation: func(_ int) (string, error) {
				return "", errTemporary
			},
			expectedCalls: 4, // Initial + 3 retries
			expectedErr:   errTemporary,
		},
		{
			name: "permanent error stops immediately",
			operation: func(_ int) (string, error) {
				return "", utils.Permanent(errNotFound)
			},
			expectedCalls: 1,
			expectedErr:   errNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			result, err := utils.WithRetry(t.Context(), func() (string, error) {
				calls++
				return tt.operation(calls)
			}, testRetryOptions())

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedResult, result)
			}

			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestWithRetryContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	calls := 0

	opts := utils.RetryOptions{
		MaxElapsedTime:  1 * time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		MaxRetries:      5,
	}

	// Cancel context after small delay
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := utils.WithRetry(ctx, func() (struct{}, error) {
		calls++
		return struct{}{}, errTemporary
	}, opts)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 5)
}
