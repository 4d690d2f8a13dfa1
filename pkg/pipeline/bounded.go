package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Thunk is one unit of work handed to RunBounded.
type Thunk[T any] func(ctx context.Context) (T, error)

// RunBounded runs thunks with at most limit in flight. A limit of zero, or one
// at least len(thunks), runs them all at once. Results are returned in input
// order.
//
// The first failure is returned as soon as it happens. Thunks that already
// started are not cancelled and keep running to completion in the
// background; thunks that have not started yet are never started.
func RunBounded[T any](ctx context.Context, limit int, thunks []Thunk[T]) ([]T, error) {
	results := make([]T, len(thunks))
	if len(thunks) == 0 {
		return results, nil
	}

	// Slots are taken in the launcher so a thunk waiting for one has not
	// started and can still be skipped after a failure.
	var slots chan struct{}
	if limit > 0 && limit < len(thunks) {
		slots = make(chan struct{}, limit)
	}

	var (
		g        errgroup.Group
		failed   atomic.Bool
		firstErr = make(chan error, 1)
		done     = make(chan struct{})
	)

	go func() {
		defer close(done)
		for i, thunk := range thunks {
			if slots != nil {
				slots <- struct{}{}
			}
			if failed.Load() {
				break
			}
			g.Go(func() error {
				if slots != nil {
					defer func() { <-slots }()
				}
				v, err := thunk(ctx)
				if err != nil {
					if failed.CompareAndSwap(false, true) {
						firstErr <- err
					}
					return err
				}
				results[i] = v
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case err := <-firstErr:
		return nil, err
	case <-done:
		select {
		case err := <-firstErr:
			return nil, err
		default:
			return results, nil
		}
	}
}
