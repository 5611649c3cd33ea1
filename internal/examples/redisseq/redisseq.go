// Package redisseq is a demo deferred-leaf source: it feeds a
// codec.Sequence from a Redis Pub/Sub subscription, the same
// "goroutine reads from a long-lived source, pushes onto a controller"
// shape as provider.GoogleProvider.ChatCompletionStream's SSE reader, but
// fed by redis.PubSub.Channel() instead of bufio.Scanner.
package redisseq

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jlinden/jsonlcodec/internal/codec"
)

// Source subscribes to one Redis channel and republishes every message
// it receives onto a codec.SequenceController, until the subscription's
// context is cancelled or the underlying connection closes.
type Source struct {
	client  *redis.Client
	channel string
}

// NewSource returns a Source that will subscribe to channel on client
// when Pump is called.
func NewSource(client *redis.Client, channel string) *Source {
	return &Source{client: client, channel: channel}
}

// Pump subscribes to the source's channel and feeds every message to
// controller until ctx is cancelled, the subscription errors, or the
// sequence itself is cancelled by its consumer walking away early —
// mirroring ChatCompletionStream's select between sending a chunk and
// <-ctx.Done().
func (s *Source) Pump(ctx context.Context, controller *codec.SequenceController) {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Channel() returns a buffered Go channel fed by a background
	// goroutine inside the redis client itself — the same "give me a
	// channel of events, I don't manage the read loop" shape as
	// bufio.Scanner, just pushed instead of pulled.
	msgs := sub.Channel()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				controller.Close()
				return
			}
			if err := controller.Enqueue(ctx, msg.Payload); err != nil {
				controller.Error(fmt.Errorf("redisseq: enqueueing message: %w", err))
				return
			}
		case <-ctx.Done():
			controller.Error(ctx.Err())
			return
		}
	}
}

// New builds a Sequence already wired to a background Pump call against
// channel, ready to be dehydrated as a deferred leaf. Callers drop the
// returned Sequence straight into the data tree passed to codec.Produce.
func New(ctx context.Context, client *redis.Client, channel string) *codec.Sequence {
	seq, controller := codec.NewSequence()
	source := NewSource(client, channel)
	go source.Pump(ctx, controller)
	return seq
}
