package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_PreservesInputOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}

	process := func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	}

	results, err := Run(context.Background(), items, process, nil, Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, results, len(items))

	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, items[i], res.Input)
		assert.Equal(t, items[i]*10, res.Output)
		assert.NoError(t, res.Err)
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var current, peak int32

	process := func(_ context.Context, n int) (int, error) {
		now := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return n, nil
	}

	_, err := Run(context.Background(), make([]int, 12), process, nil, Options{Workers: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_KeepsGoingOnNonFatalErrors(t *testing.T) {
	boom := errors.New("boom")
	process := func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	}

	results, err := Run(context.Background(), []int{1, 2, 3}, process, nil, Options{Workers: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, 3, results[2].Output)
}

func TestRun_FailFast(t *testing.T) {
	fatal := errors.New("fatal")
	var calls int32

	process := func(_ context.Context, n int) (int, error) {
		atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 0, fatal
		}
		return n, nil
	}

	results, err := Run(context.Background(), []int{0, 1, 2, 3, 4}, process, nil, Options{
		Workers:  1,
		FailFast: func(err error) bool { return errors.Is(err, fatal) },
	})
	require.ErrorIs(t, err, fatal)
	require.Len(t, results, 5)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, fatal)
	assert.Less(t, atomic.LoadInt32(&calls), int32(5))
	assert.Error(t, results[4].Err)
}

func TestRun_CallbackSeesEveryResult(t *testing.T) {
	seen := map[int]bool{}
	onResult := func(res Result[string, int]) {
		seen[res.Index] = true
	}

	process := func(_ context.Context, s string) (int, error) {
		return len(s), nil
	}

	_, err := Run(context.Background(), []string{"a", "bb", "ccc"}, process, onResult, Options{Workers: 3})
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	process := func(_ context.Context, n int) (int, error) {
		return n, nil
	}

	results, err := Run(ctx, []int{1, 2}, process, nil, Options{Workers: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 2)
}

func TestRun_RateLimit(t *testing.T) {
	process := func(_ context.Context, n int) (int, error) {
		return n, nil
	}

	start := time.Now()
	_, err := Run(context.Background(), []int{1, 2, 3}, process, nil, Options{Workers: 3, RateLimitRPS: 20})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
