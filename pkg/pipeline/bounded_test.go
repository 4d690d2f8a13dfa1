package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBounded_ResultsInInputOrder(t *testing.T) {
	thunks := make([]Thunk[int], 5)
	for i := range thunks {
		thunks[i] = func(context.Context) (int, error) {
			// Later thunks finish first.
			time.Sleep(time.Duration(5-i) * 2 * time.Millisecond)
			return i * 10, nil
		}
	}

	results, err := RunBounded(context.Background(), 0, thunks)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30, 40}, results)
}

func TestRunBounded_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	thunks := make([]Thunk[struct{}], 8)
	for i := range thunks {
		thunks[i] = func(context.Context) (struct{}, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return struct{}{}, nil
		}
	}

	_, err := RunBounded(context.Background(), 2, thunks)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(2), peak.Load())
}

func TestRunBounded_Unbounded(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	thunks := make([]Thunk[int], 4)
	for i := range thunks {
		thunks[i] = func(context.Context) (int, error) {
			started.Add(1)
			<-release
			return i, nil
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = RunBounded(context.Background(), 0, thunks)
	}()

	assert.Eventually(t, func() bool { return started.Load() == 4 }, time.Second, time.Millisecond)
	close(release)
	<-done
}

func TestRunBounded_FailFastWithoutCancellingSiblings(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})
	var siblingStarted, siblingFinished atomic.Bool

	thunks := []Thunk[string]{
		func(context.Context) (string, error) {
			siblingStarted.Store(true)
			<-release
			siblingFinished.Store(true)
			return "slow", nil
		},
		func(context.Context) (string, error) {
			return "", boom
		},
	}

	results, err := RunBounded(context.Background(), 0, thunks)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, results)
	assert.False(t, siblingFinished.Load())

	// Unbounded thunks all start, even when a sibling fails first.
	assert.Eventually(t, siblingStarted.Load, time.Second, time.Millisecond)

	// The sibling was not cancelled and still completes.
	close(release)
	assert.Eventually(t, siblingFinished.Load, time.Second, time.Millisecond)
}

func TestRunBounded_StopsLaunchingAfterFailure(t *testing.T) {
	var started atomic.Int32
	thunks := []Thunk[int]{
		func(context.Context) (int, error) {
			started.Add(1)
			return 0, errors.New("first fails")
		},
	}
	for i := 0; i < 5; i++ {
		thunks = append(thunks, func(context.Context) (int, error) {
			started.Add(1)
			return i, nil
		})
	}

	_, err := RunBounded(context.Background(), 1, thunks)
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load())
}

func TestRunBounded_Empty(t *testing.T) {
	results, err := RunBounded[int](context.Background(), 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
