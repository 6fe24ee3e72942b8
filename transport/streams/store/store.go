// Package store keeps the open streams of one connection.
package store

import (
	"sync"

	"github.com/ozontech/h2duplex/transport/types"
)

// StreamsMap is safe for concurrent use. Iteration works on a snapshot, so
// callbacks may end streams, which deletes them.
type StreamsMap struct {
	mu sync.RWMutex
	m  map[uint32]types.Stream
}

func NewStreamsMap(size int) *StreamsMap {
	return &StreamsMap{m: make(map[uint32]types.Stream, size)}
}

func (s *StreamsMap) Set(id uint32, stream types.Stream) {
	s.mu.Lock()
	s.m[id] = stream
	s.mu.Unlock()
}

func (s *StreamsMap) Get(id uint32) types.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[id]
}

func (s *StreamsMap) Delete(id uint32) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

func (s *StreamsMap) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Each calls fn for every open stream.
func (s *StreamsMap) Each(fn func(types.Stream)) {
	for _, stream := range s.filter(func(uint32) bool { return true }) {
		fn(stream)
	}
}

// Above returns the streams with ids greater than lastID: the ones a GOAWAY
// with that last stream id did not process.
func (s *StreamsMap) Above(lastID uint32) []types.Stream {
	return s.filter(func(id uint32) bool { return id > lastID })
}

func (s *StreamsMap) filter(keep func(uint32) bool) []types.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Stream, 0, len(s.m))
	for id, stream := range s.m {
		if keep(id) {
			out = append(out, stream)
		}
	}
	return out
}
