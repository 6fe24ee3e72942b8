package pool

import "sync"

type SlicePool[T any] struct {
	mu sync.Mutex
	s  []T
}

func NewSlicePool[T any]() *SlicePool[T] {
	return new(SlicePool[T])
}

func NewSlicePoolSize[T any](size int) *SlicePool[T] {
	return &SlicePool[T]{s: make([]T, 0, size)}
}

func (p *SlicePool[T]) Acquire() (v T, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := len(p.s)
	if l == 0 {
		return v, false
	}

	v = p.s[l-1]
	p.s = p.s[:l-1]
	return v, true
}

func (p *SlicePool[T]) Release(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.s = append(p.s, v)
}

// BytesPool hands out buffers of one fixed capacity. Release of a buffer with
// a different capacity is ignored, so callers may pass through anything they
// got from Acquire, resliced or not.
type BytesPool struct {
	size int
	p    *SlicePool[[]byte]
}

func NewBytesPool(size, prealloc int) *BytesPool {
	return &BytesPool{size, NewSlicePoolSize[[]byte](prealloc)}
}

func (p *BytesPool) Size() int { return p.size }

// Acquire returns a buffer of length n. n must not exceed Size.
func (p *BytesPool) Acquire(n int) []byte {
	if n > p.size {
		panic("assertion error")
	}
	b, ok := p.p.Acquire()
	if !ok {
		b = make([]byte, p.size)
	}
	return b[:n]
}

func (p *BytesPool) Release(b []byte) {
	if cap(b) != p.size {
		return
	}
	p.p.Release(b[:p.size])
}
