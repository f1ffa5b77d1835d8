package util

import "sync"

// DefaultChunkSize is the receive chunk size (1 KiB): one poll never
// returns more than this many bytes.
const DefaultChunkSize = 1024

// ChunkPool provides reusable receive buffers so the 50ms poll loop
// does not allocate a fresh slice on every tick.
var ChunkPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultChunkSize)
		return &buf
	},
}

// GetChunk returns a buffer of at least size bytes, sliced to size.
// Callers must hand it back with [PutChunk].
func GetChunk(size int) *[]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := ChunkPool.Get().(*[]byte)
	if cap(*buf) < size {
		b := make([]byte, size)
		return &b
	}
	*buf = (*buf)[:size]
	return buf
}

// PutChunk returns a buffer to the pool for reuse.
func PutChunk(buf *[]byte) {
	if buf == nil {
		return
	}
	ChunkPool.Put(buf)
}
