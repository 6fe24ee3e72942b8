package lru

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	var calls int
	upper := func(s string) string {
		calls++
		return strings.ToUpper(s)
	}

	l := New(3)
	a.Equal("ONE", l.GetOrAdd("one", upper))
	l.GetOrAdd("two", upper)
	l.GetOrAdd("three", upper)
	a.Equal("ONE", l.GetOrAdd("one", upper))
	a.Equal(3, calls)
	a.Equal(3, l.Len())

	l.GetOrAdd("four", upper)
	a.Equal(3, l.Len())
	a.Equal(4, calls)

	lruOrder := []string{"four", "one", "three"}
	el := l.order.Front()
	for _, v := range lruOrder {
		_, ok := l.items[v]
		a.True(ok)
		a.Equal(v, el.Value.(*entry).key)
		el = el.Next()
	}

	// "two" was evicted
	l.GetOrAdd("two", upper)
	a.Equal(5, calls)
}

func TestLRUSizeAssertion(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { New(0) })
}
