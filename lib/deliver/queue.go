package deliver

import (
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node struct {
	value *ddsi.Serdata
	next  atomic.Pointer[node]
}

// Queue is a lock-free multi-producer single-consumer queue of Serdata.
//
// The queue owns one reference of every pushed Serdata until it is received
// from Recv, after which the receiver owns it. Items still queued when the
// queue is discarded are released by the queue.
//
// Implementation uses a linked list of nodes with atomic operations for
// concurrent push operations without locks. Under concurrent Push operations
// the order is determined by which producer completes first.
type Queue struct {
	head     atomic.Pointer[node]
	tail     atomic.Pointer[node]
	out      chan *ddsi.Serdata
	consumer sync.WaitGroup
	closed   atomic.Bool
	inflight atomic.Int64 // producers between the closed check and the append

	discard     chan struct{}
	discardOnce sync.Once

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// NewQueue creates a new queue and starts its consumer goroutine
func NewQueue() *Queue {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node{}

	q := &Queue{
		out:     make(chan *ddsi.Serdata),
		discard: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push transfers one reference of d to the queue.
// Returns false if the queue is closed, the caller then still owns the reference.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue) Push(d *ddsi.Serdata) bool {
	if d == nil {
		return false
	}

	q.inflight.Add(1)
	defer q.signalDone()

	if q.closed.Load() {
		return false
	}

	newNode := &node{value: d}

	var backoff uint8 = 0
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already helped, tail is updated eventually
				q.tail.CompareAndSwap(tailNode, newNode)
				return true
			}
		} else {
			// help update the tail pointer if another producer has already appended a node but hasn't updated it yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff: spin at low contention, yield at higher contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// signalDone finishes a Push and wakes the consumer
func (q *Queue) signalDone() {
	q.inflight.Add(-1)
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// finished reports whether no producer can append anymore and nothing is queued
func (q *Queue) finished() bool {
	return q.closed.Load() && q.inflight.Load() == 0 && q.head.Load().next.Load() == nil
}

// consume continuously sends items from the linked list to the output channel
func (q *Queue) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			value := next.value
			q.head.Store(next)
			next.value = nil

			select {
			case q.out <- value:
			case <-q.discard:
				value.RemoveRef()
			}
		}

		if !hasItems && q.finished() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.finished() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue. The channel
// is closed once the queue is closed and every item has been delivered.
// The receiver owns the reference of every received Serdata.
func (q *Queue) Recv() <-chan *ddsi.Serdata {
	return q.out
}

// Close closes the queue, preventing further pushes.
// Items already in the queue will still be delivered to the consumer.
func (q *Queue) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// Discard closes the queue and releases every item that has not been received
// yet. It returns once the consumer goroutine has stopped.
func (q *Queue) Discard() {
	q.discardOnce.Do(func() { close(q.discard) })
	q.Close()
	q.consumer.Wait()
}

// IsClosed returns true if the queue is closed.
func (q *Queue) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the number of items in the queue.
// This is O(n) and should only be used for debugging.
func (q *Queue) Len() int {
	count := 0
	current := q.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}
	return count
}
