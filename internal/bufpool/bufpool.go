// Package bufpool hands out reusable byte slices for block staging and
// decompression scratch. Slices are grouped into power-of-two capacity
// classes backed by sync.Pool, so a steady-state stream churns through
// blocks without allocating.
package bufpool

import (
	"math/bits"
	"sync"
)

// The smallest class holds 1<<minClassBits bytes, the smallest block a
// container accepts. classCount doublings on top of that cover every
// legal block size plus its compression bound; requests beyond the top
// class fall through to one-off allocations.
const (
	minClassBits = 8
	classCount   = 24
)

var classes [classCount]sync.Pool

// Get returns a zero-length slice with capacity of at least size,
// reusing a pooled slice when one is available. Callers hand the slice
// back with Put once the scratch work is done.
func Get(size int) []byte {
	class, capacity := classFor(size)
	if buf, ok := classes[class].Get().([]byte); ok {
		return buf
	}
	return make([]byte, 0, capacity)
}

// Put recycles a slice obtained from Get. Empty slices and slices
// larger than the biggest class are left for the garbage collector.
func Put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	class, capacity := classFor(cap(buf))
	if cap(buf) > capacity {
		return
	}
	classes[class].Put(buf[:0])
}

// classFor maps a requested size onto the smallest class able to hold
// it, returning the class index and the capacity slices of that class
// carry.
func classFor(size int) (class, capacity int) {
	bucket := (size - 1) >> minClassBits
	if bucket < 0 {
		bucket = 0
	}
	class = min(bits.Len(uint(bucket)), classCount-1)
	return class, 1 << (class + minClassBits)
}
