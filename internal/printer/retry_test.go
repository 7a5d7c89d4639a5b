package printer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	t.Run("returns result when fn reports done", func(t *testing.T) {
		calls := 0
		result, err := poll(context.Background(), 5, time.Millisecond, func() (string, bool, error) {
			calls++
			return "done", calls == 3, nil
		})

		require.NoError(t, err)
		assert.Equal(t, "done", result)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops exactly at the attempt budget", func(t *testing.T) {
		calls := 0
		_, err := poll(context.Background(), 4, time.Millisecond, func() (string, bool, error) {
			calls++
			return "", false, nil
		})

		assert.ErrorIs(t, err, errBudgetExhausted)
		assert.Equal(t, 4, calls)
	})

	t.Run("aborts on fn error without retrying", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		_, err := poll(context.Background(), 5, time.Millisecond, func() (string, bool, error) {
			calls++
			return "", false, boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("honors cancellation between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		calls := 0
		_, err := poll(ctx, 100, 50*time.Millisecond, func() (int, bool, error) {
			calls++
			cancel()
			return 0, false, nil
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("does not sleep after the final attempt", func(t *testing.T) {
		start := time.Now()
		_, err := poll(context.Background(), 2, 40*time.Millisecond, func() (int, bool, error) {
			return 0, false, nil
		})

		assert.ErrorIs(t, err, errBudgetExhausted)
		// 2 attempts with one delay between them, not two
		assert.Less(t, time.Since(start), 80*time.Millisecond)
	})
}
