package util

import "testing"

// BenchmarkChunkPool measures the allocation advantage of sync.Pool
// chunk reuse versus fresh allocation on every poll.
func BenchmarkChunkPool(b *testing.B) {
	b.Run("pool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := GetChunk(DefaultChunkSize)
			_ = (*buf)[0]
			PutChunk(buf)
		}
	})
	b.Run("alloc", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := make([]byte, DefaultChunkSize)
			_ = buf[0]
		}
	})
}
