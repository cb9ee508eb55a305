// pkg/utils/alloc.go

package utils

import (
	"sync"
	"sync/atomic"
)

var used int64
var pools = make([]*sync.Pool, 31) // 1 byte - 1G

func init() {
	for i := range pools {
		bits := i
		pools[i] = &sync.Pool{
			New: func() interface{} {
				b := make([]byte, 1<<bits)
				return &b
			},
		}
	}
}

// PowerOf2 returns the smallest n so that 1<<n >= s.
func PowerOf2(s int) int {
	var bits int
	var p = 1
	for p < s {
		bits++
		p <<= 1
	}
	return bits
}

// Alloc returns a buffer of `size` bytes backed by a pooled power-of-two slab.
func Alloc(size int) []byte {
	zeros := PowerOf2(size)
	b := *pools[zeros].Get().(*[]byte)
	atomic.AddInt64(&used, int64(cap(b)))
	return b[:size]
}

// Free returns a buffer allocated by Alloc back to its pool.
func Free(b []byte) {
	c := cap(b)
	if c == 0 || c != 1<<PowerOf2(c) {
		return // not one of ours
	}
	atomic.AddInt64(&used, -int64(c))
	b = b[:c]
	pools[PowerOf2(c)].Put(&b)
}

// AllocMemory returns the number of bytes handed out by Alloc and not yet freed.
func AllocMemory() int64 {
	return atomic.LoadInt64(&used)
}
