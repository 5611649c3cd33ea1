package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// produceConsume runs Produce against one end of a pipe while Consume
// reads the other end concurrently, the way an HTTP server streams a
// response body while a client reads it incrementally. It returns the
// rehydrated tree and blocks until Produce has finished writing.
func produceConsume(t *testing.T, ctx context.Context, opts ProduceOptions) map[string]any {
	t.Helper()
	pr, pw := io.Pipe()

	var produceErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		produceErr = Produce(ctx, pw, opts)
		pw.Close()
	}()

	tree, err := Consume(ctx, ConsumeOptions{From: pr})
	require.NoError(t, err)

	wg.Wait()
	require.NoError(t, produceErr)
	return tree
}

func TestCodec_PlainRootNoDeferredLeaves(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Produce(context.Background(), &buf, ProduceOptions{
		Data: map[string]any{"greeting": "hi"},
	}))
	assert.Equal(t, `{"greeting":[["hi"]]}`+"\n", buf.String())

	tree, err := Consume(context.Background(), ConsumeOptions{From: &buf})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hi"}, tree)
}

func TestCodec_SingleFutureResolves(t *testing.T) {
	f := NewFuture()
	f.Resolve(float64(7))

	tree := produceConsume(t, context.Background(), ProduceOptions{
		Data: map[string]any{"x": f},
	})

	got := tree["x"].(*Future)
	v, err := got.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(7), v)
}

func TestCodec_FutureRejectionCarriesFormattedError(t *testing.T) {
	f := NewFuture()
	f.Reject(assert.AnError)

	tree := produceConsume(t, context.Background(), ProduceOptions{
		Data: map[string]any{"x": f},
		FormatError: func(err error) any {
			return map[string]string{"msg": err.Error()}
		},
	})

	got := tree["x"].(*Future)
	_, err := got.Await(context.Background())
	require.Error(t, err)
	asyncErr, ok := err.(*AsyncError)
	require.True(t, ok)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(asyncErr.Raw, &payload))
	assert.Equal(t, assert.AnError.Error(), payload["msg"])
}

func TestCodec_SequenceYieldsThenTerminates(t *testing.T) {
	seq, ctrl := NewSequence()
	go func() {
		ctx := context.Background()
		require.NoError(t, ctrl.Enqueue(ctx, float64(1)))
		require.NoError(t, ctrl.Enqueue(ctx, float64(2)))
		require.NoError(t, ctrl.Enqueue(ctx, float64(3)))
		ctrl.Close()
	}()

	tree := produceConsume(t, context.Background(), ProduceOptions{
		Data: map[string]any{"xs": seq},
	})

	got := tree["xs"].(*Sequence)
	var values []any
	for {
		v, done, err := got.Next(context.Background())
		require.NoError(t, err)
		if done {
			break
		}
		values = append(values, v)
	}
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, values)
}

func TestCodec_TwoConcurrentFuturesReverseCompletionOrder(t *testing.T) {
	a := NewFuture()
	b := NewFuture()
	go func() {
		time.Sleep(10 * time.Millisecond)
		a.Resolve(float64(1))
	}()
	b.Resolve(float64(2))

	tree := produceConsume(t, context.Background(), ProduceOptions{
		Data: map[string]any{"a": a, "b": b},
	})

	va, err := tree["a"].(*Future).Await(context.Background())
	require.NoError(t, err)
	vb, err := tree["b"].(*Future).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), va)
	assert.Equal(t, float64(2), vb)
}

func TestCodec_NestedFutureOfFuture(t *testing.T) {
	inner := NewFuture()
	inner.Resolve(float64(9))
	outer := NewFuture()
	outer.Resolve(map[string]any{"y": inner})

	tree := produceConsume(t, context.Background(), ProduceOptions{
		Data: map[string]any{"x": outer},
	})

	outerResult, err := tree["x"].(*Future).Await(context.Background())
	require.NoError(t, err)
	inside := outerResult.(map[string]any)
	y := inside["y"].(*Future)
	v, err := y.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(9), v)
}

func TestCodec_InterruptionRejectsUnresolvedFutures(t *testing.T) {
	// A head describing one pending promise, with the byte stream cut
	// before its terminal chunk ever arrives.
	head := `{"x":[[0],[null,0,0]]}` + "\n"

	tree, err := Consume(context.Background(), ConsumeOptions{From: bytes.NewBufferString(head)})
	require.NoError(t, err)

	f := tree["x"].(*Future)
	_, err = f.Await(context.Background())
	assert.ErrorIs(t, err, ErrStreamInterrupted)
}

func TestCodec_ChunkIDsAllocateStrictlyIncreasingFromZero(t *testing.T) {
	d := NewDehydrator(context.Background(), DehydrateOptions{})
	f1 := NewFuture()
	f1.Resolve(1)
	f2 := NewFuture()
	f2.Resolve(2)
	f3 := NewFuture()
	f3.Resolve(3)

	got := d.Dehydrate(map[string]any{"a": f1, "b": f2, "c": f3}, nil)
	d.Close()
	for c := range d.Chunks() {
		_ = c
	}

	ids := make(map[string]int64)
	for _, desc := range got.Descriptors {
		ids[desc.Key.(string)] = desc.ChunkID
	}
	assert.ElementsMatch(t, []int64{0, 1, 2}, []int64{ids["a"], ids["b"], ids["c"]})
}
