package codec

import (
	"sync"

	"github.com/jlinden/jsonlcodec/internal/wire"
)

// Demuxer routes incoming chunks to per-chunk-id subscriber channels
// (C6, "Multiplex Demuxer"). It is the consumer-side mirror of
// infrastructure/mcp.MCPClient's `responses map[int64]chan *rpcResponse`
// dispatch loop: one goroutine reads a single underlying stream and fans
// each message out by id, while arbitrary numbers of callers block
// waiting for "their" id's turn to arrive via Register.
//
// Unlike the MCP client's one-shot request/response map, a Demuxer
// registration stays open across multiple chunks (an ASYNC_SEQUENCE's
// VALUE chunks arrive many at a time before its terminal DONE/ERROR), so
// Dispatch does not remove the registration on first delivery — only
// Unregister does.
//
// Every per-id channel is unbuffered and created lazily on first touch by
// whichever of Register/Dispatch sees the id first. Dispatch always does
// a blocking send — it never buffers a chunk for an id nobody has
// registered yet. This is deliberate: spec.md's design notes call out
// unbounded buffering of unrouted chunks as the one thing not to do, and
// name the blocking send itself as the protocol's backpressure point.
type Demuxer struct {
	mu   sync.Mutex
	subs map[wire.ChunkID]chan wire.RawChunk
}

// NewDemuxer returns a ready-to-use Demuxer.
func NewDemuxer() *Demuxer {
	return &Demuxer{subs: make(map[wire.ChunkID]chan wire.RawChunk)}
}

func (m *Demuxer) channelFor(id wire.ChunkID) chan wire.RawChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.subs[id]
	if !ok {
		ch = make(chan wire.RawChunk)
		m.subs[id] = ch
	}
	return ch
}

// Register returns the channel that will receive every chunk Dispatch
// routes to id, whether or not any have arrived yet.
func (m *Demuxer) Register(id wire.ChunkID) <-chan wire.RawChunk {
	return m.channelFor(id)
}

// Dispatch routes one chunk to id's channel, blocking until a registered
// reader accepts it. If nothing has called Register(id) yet, Dispatch
// still blocks — on the channel a later Register call will return — so
// the single reader driving Dispatch applies backpressure to the whole
// stream rather than buffering chunks for ids nobody is consuming.
func (m *Demuxer) Dispatch(c wire.RawChunk) {
	m.channelFor(c.ID) <- c
}

// Unregister removes id's channel, releasing it from the map once its
// terminal chunk has been consumed. A subsequent Register/Dispatch for
// the same id (which the protocol never actually does, ids are never
// reused) would start a fresh, unrelated channel.
func (m *Demuxer) Unregister(id wire.ChunkID) {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
}

// Abort closes every still-registered subscriber channel without
// delivering a terminal chunk, for when the underlying line stream ends
// or errors before every chunk-id completed — the trigger for
// ErrStreamInterrupted on the consumer side.
//
// Callers must serialize Abort against Dispatch: Consume's chunk reader
// (pumpChunks) calls Dispatch for each line in order and calls Abort
// exactly once, only after that loop exits, never concurrently with it.
func (m *Demuxer) Abort() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[wire.ChunkID]chan wire.RawChunk)
	m.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
