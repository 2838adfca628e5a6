package goreflcore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTrialsVisitsEveryIndex(t *testing.T) {
	out := make([]int, 50)
	err := runTrials(context.Background(), len(out), 4, func(i int) error {
		out[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestRunTrialsStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	err := runTrials(context.Background(), 1000, 1, func(i int) error {
		calls.Add(1)
		if i == 3 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(4), calls.Load())
}

func TestRunTrialsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runTrials(ctx, 10, 0, func(int) error {
		t.Fatal("trial ran after cancel")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
