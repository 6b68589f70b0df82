// Package bufpool provides pooled byte slices for tensor payloads; the
// heap uses them as the checksum scratch buffer on every tensor write
// (RUN_MODEL output, the uploaded policy), avoiding a fresh allocation
// each time.
//
// Uses size-bucketed pools (1KB, 4KB, 16KB, 64KB) with the
// pointer-to-slice sync.Pool pattern, adapted from the queue runner's
// buffer pool — tensor payloads here top out at the heap's block
// granularity rather than the multi-megabyte I/O sizes that pool was
// bucketed for.
package bufpool

import "sync"

const (
	size1k  = 1 * 1024
	size4k  = 4 * 1024
	size16k = 16 * 1024
	size64k = 64 * 1024
)

var globalPool = struct {
	pool1k  sync.Pool
	pool4k  sync.Pool
	pool16k sync.Pool
	pool64k sync.Pool
}{
	pool1k:  sync.Pool{New: func() any { b := make([]byte, size1k); return &b }},
	pool4k:  sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool16k: sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
	pool64k: sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
}

// Get returns a pooled buffer of at least the requested size. Caller
// must call Put when done. Requests larger than the biggest bucket
// are allocated directly and not pooled.
func Get(size int) []byte {
	switch {
	case size <= size1k:
		return (*globalPool.pool1k.Get().(*[]byte))[:size]
	case size <= size4k:
		return (*globalPool.pool4k.Get().(*[]byte))[:size]
	case size <= size16k:
		return (*globalPool.pool16k.Get().(*[]byte))[:size]
	case size <= size64k:
		return (*globalPool.pool64k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// Put returns a buffer to the pool it came from, determined by its
// capacity. Buffers with a non-standard capacity are dropped rather
// than pooled.
func Put(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size1k:
		globalPool.pool1k.Put(&buf)
	case size4k:
		globalPool.pool4k.Put(&buf)
	case size16k:
		globalPool.pool16k.Put(&buf)
	case size64k:
		globalPool.pool64k.Put(&buf)
	}
}
