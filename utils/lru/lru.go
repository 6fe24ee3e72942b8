// Package lru is a small bounded cache of derived strings.
package lru

import (
	"container/list"
	"sync"
)

type entry struct {
	key, value string
}

// LRU maps a key to a value computed once by the caller. The least recently
// used key is evicted when the cache is full.
type LRU struct {
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	mu      sync.Mutex
}

func New(maxSize int) *LRU {
	if maxSize < 1 {
		panic("assertion error: maxSize < 1")
	}
	return &LRU{
		maxSize: maxSize,
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
	}
}

// GetOrAdd returns the cached value for key or stores derive(key).
// derive is called under the cache lock.
func (l *LRU) GetOrAdd(key string, derive func(string) string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.items[key]; ok {
		l.order.MoveToFront(el)
		return el.Value.(*entry).value
	}

	if len(l.items) >= l.maxSize {
		el := l.order.Back()
		l.order.Remove(el)
		delete(l.items, el.Value.(*entry).key)
	}

	e := &entry{key: key, value: derive(key)}
	l.items[key] = l.order.PushFront(e)
	return e.value
}

func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
