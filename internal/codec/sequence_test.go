package codec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_EmitsValuesThenDone(t *testing.T) {
	seq, ctrl := NewSequence()
	ctx := context.Background()

	go func() {
		require.NoError(t, ctrl.Enqueue(ctx, 1))
		require.NoError(t, ctrl.Enqueue(ctx, 2))
		require.NoError(t, ctrl.Enqueue(ctx, 3))
		ctrl.Close()
	}()

	var got []any
	for {
		v, done, err := seq.Next(ctx)
		require.NoError(t, err)
		if done {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []any{1, 2, 3}, got)
}

func TestSequence_ErrorTerminatesIteration(t *testing.T) {
	seq, ctrl := NewSequence()
	ctx := context.Background()
	cause := errors.New("iteration failed")

	go func() {
		require.NoError(t, ctrl.Enqueue(ctx, "a"))
		ctrl.Error(cause)
	}()

	v, done, err := seq.Next(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "a", v)

	_, done, err = seq.Next(ctx)
	assert.True(t, done)
	assert.ErrorIs(t, err, cause)
}

func TestSequence_CloseIsIdempotent(t *testing.T) {
	seq, ctrl := NewSequence()
	// Close hands its terminal event to a reader, so one must be waiting.
	go func() { seq.Next(context.Background()) }()
	ctrl.Close()
	ctrl.Close()
	ctrl.Error(errors.New("ignored"))
}

func TestSequence_EnqueueAfterClosePanics(t *testing.T) {
	seq, ctrl := NewSequence()
	go func() { seq.Next(context.Background()) }()
	ctrl.Close()

	assert.Panics(t, func() {
		_ = ctrl.Enqueue(context.Background(), "too late")
	})
}

func TestSequence_CancelReleasesPendingEnqueue(t *testing.T) {
	seq, ctrl := NewSequence()
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Enqueue(ctx, "never read")
	}()

	assert.False(t, seq.IsCancelled())
	seq.Cancel()

	err := <-errCh
	assert.ErrorIs(t, err, ErrStreamInterrupted)
	assert.True(t, seq.IsCancelled())
}

func TestSequence_CancelIsIdempotent(t *testing.T) {
	seq, _ := NewSequence()
	seq.Cancel()
	seq.Cancel()
	assert.True(t, seq.IsCancelled())
}
