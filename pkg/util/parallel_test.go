package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelVisitsAll(t *testing.T) {
	var sum, inFlight, peak atomic.Int64
	inputs := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	err := Parallel(context.Background(), inputs, 3, func(ctx context.Context, n int64) error {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		sum.Add(n)
		inFlight.Add(-1)
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(55), sum.Load())
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestParallelStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	err := Parallel(context.Background(), []int{1, 2, 3}, 1, func(ctx context.Context, n int) error {
		if n == 1 {
			return boom
		}
		t.Errorf("item %d ran after the failure", n)
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestParallelEmpty(t *testing.T) {
	assert.NoError(t, Parallel(context.Background(), []string(nil), 4, func(context.Context, string) error {
		return errors.New("never called")
	}))
}
