package bridge

// chunkQueue is a FIFO of byte chunks with a byte total.
type chunkQueue struct {
	chunks [][]byte
	size   int
}

func (q *chunkQueue) Len() int    { return len(q.chunks) }
func (q *chunkQueue) Size() int   { return q.size }
func (q *chunkQueue) Empty() bool { return len(q.chunks) == 0 }

func (q *chunkQueue) Push(b []byte) {
	q.chunks = append(q.chunks, b)
	q.size += len(b)
}

func (q *chunkQueue) Pop() []byte {
	b := q.chunks[0]
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]
	q.size -= len(b)
	return b
}

// CopyTo moves up to len(out) bytes from the head of the queue into out.
func (q *chunkQueue) CopyTo(out []byte) int {
	n := 0
	for n < len(out) && len(q.chunks) > 0 {
		head := q.chunks[0]
		c := copy(out[n:], head)
		n += c
		if c == len(head) {
			q.Pop()
			continue
		}
		q.chunks[0] = head[c:]
		q.size -= c
	}
	return n
}

// Drop empties the queue and returns the number of bytes it held.
func (q *chunkQueue) Drop() int {
	size := q.size
	clear(q.chunks)
	q.chunks = q.chunks[:0]
	q.size = 0
	return size
}
