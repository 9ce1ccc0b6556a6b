package evserve

import (
	"container/list"
	"sync"
	"time"
)

// keepAliveEntry is one node's payload in the queue: the connection and
// the deadline it was last touched at.
type keepAliveEntry struct {
	conn     *clientConn
	deadline time.Time
}

// keepAliveQueue is C11: an insertion-ordered queue of idle connections,
// swept front-to-back, stopping at the first entry not yet expired
// (§4.7's short-circuit: since touches move an entry to the back, the
// queue stays sorted by deadline and a full scan is never needed).
//
// Grounded on container/list, the same structure badu-http's
// timeout_writer.go family of idioms implies but never needed at
// connection-set scale; list.List gives O(1) move-to-back on touch.
type keepAliveQueue struct {
	mu      sync.Mutex
	l       *list.List
	byConn  map[*clientConn]*list.Element
	timeout time.Duration
}

func newKeepAliveQueue(timeout time.Duration) *keepAliveQueue {
	return &keepAliveQueue{
		l:       list.New(),
		byConn:  make(map[*clientConn]*list.Element),
		timeout: timeout,
	}
}

// Touch records activity on c, moving it to the back of the queue with
// a fresh deadline. Called whenever bytes are read from or a response
// completes on the connection (§4.7 "refresh on activity").
func (q *keepAliveQueue) Touch(c *clientConn) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry := keepAliveEntry{conn: c, deadline: time.Now().Add(q.timeout)}
	if elem, ok := q.byConn[c]; ok {
		q.l.MoveToBack(elem)
		elem.Value = entry
		return
	}
	q.byConn[c] = q.l.PushBack(entry)
}

// Remove drops c from the queue (on close/export), so Sweep never sees
// a stale entry.
func (q *keepAliveQueue) Remove(c *clientConn) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if elem, ok := q.byConn[c]; ok {
		q.l.Remove(elem)
		delete(q.byConn, c)
	}
}

// Sweep walks the queue from the front, closing every expired connection
// that is actually idle, and stops once it reaches one not yet expired —
// the short-circuit named in §4.7, valid because Touch always moves an
// entry to the back, keeping the list sorted ascending by deadline.
//
// An expired connection that is still busy (at least one response is
// still being produced for it; active request-body emitters are not
// counted against that) is not idle: it is given a fresh deadline and moved to the
// back instead of being closed, the same way Touch would from a read, so
// a long-running response is never severed just because the connection
// went quiet on its read side.
func (q *keepAliveQueue) Sweep(now time.Time) (expired int) {
	q.mu.Lock()
	var toClose []*clientConn
	for e := q.l.Front(); e != nil; {
		entry := e.Value.(keepAliveEntry)
		if entry.deadline.After(now) {
			break
		}
		next := e.Next()
		if entry.conn.busy() {
			e.Value = keepAliveEntry{conn: entry.conn, deadline: now.Add(q.timeout)}
			q.l.MoveToBack(e)
			e = next
			continue
		}
		q.l.Remove(e)
		delete(q.byConn, entry.conn)
		toClose = append(toClose, entry.conn)
		e = next
	}
	q.mu.Unlock()

	for _, c := range toClose {
		c.closeNow()
	}
	return len(toClose)
}

// Len reports the number of connections currently tracked, for C13.
func (q *keepAliveQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.l.Len()
}
