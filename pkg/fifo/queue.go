package fifo

// queue is a growable ring buffer of keys. It is the order ledger of a
// Cache: keys go in at the back and are evicted from the front.
type queue[K comparable] struct {
	buf  []K
	head int
	n    int
}

func newQueue[K comparable](capacity int) queue[K] {
	if capacity < 1 {
		capacity = 1
	}
	return queue[K]{buf: make([]K, capacity)}
}

func (q *queue[K]) len() int { return q.n }

func (q *queue[K]) pushBack(k K) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = k
	q.n++
}

func (q *queue[K]) popFront() (K, bool) {
	var zero K
	if q.n == 0 {
		return zero, false
	}
	k := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return k, true
}

func (q *queue[K]) at(i int) K {
	return q.buf[(q.head+i)%len(q.buf)]
}

// retain keeps the keys for which keep returns true, in order, and returns
// how many were dropped.
func (q *queue[K]) retain(keep func(K) bool) int {
	var zero K
	kept := 0
	for i := 0; i < q.n; i++ {
		k := q.at(i)
		if !keep(k) {
			continue
		}
		q.buf[(q.head+kept)%len(q.buf)] = k
		kept++
	}
	for i := kept; i < q.n; i++ {
		q.buf[(q.head+i)%len(q.buf)] = zero
	}
	dropped := q.n - kept
	q.n = kept
	return dropped
}

// removeFirst drops the first occurrence of k.
func (q *queue[K]) removeFirst(k K) bool {
	found := false
	q.retain(func(x K) bool {
		if !found && x == k {
			found = true
			return false
		}
		return true
	})
	return found
}

func (q *queue[K]) keys() []K {
	out := make([]K, q.n)
	for i := range out {
		out[i] = q.at(i)
	}
	return out
}

func (q *queue[K]) clear() {
	clear(q.buf)
	q.head = 0
	q.n = 0
}

func (q *queue[K]) grow() {
	buf := make([]K, len(q.buf)*2)
	for i := 0; i < q.n; i++ {
		buf[i] = q.at(i)
	}
	q.buf = buf
	q.head = 0
}
