package deliver

import (
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/ValentinKolb/serdata/lib/ddsi/codec"
	"runtime"
	"sync"
	"testing"
	"time"
)

// newTestType registers a keyed "Reading" type encoded as CDR
func newTestType(t testing.TB) (*ddsi.Registry, *ddsi.Sertype) {
	t.Helper()
	layout := &codec.Layout{
		Name:    "Reading",
		Version: 1,
		Fields: []codec.Field{
			{Name: "id", Type: codec.TypeUint32, Key: true},
			{Name: "value", Type: codec.TypeInt64},
		},
	}
	reg := ddsi.NewRegistry(nil)
	types, err := codec.RegisterLayouts(reg, []*codec.Layout{layout}, "cdr")
	if err != nil {
		t.Fatalf("Failed to register test type: %v", err)
	}
	return reg, types[0]
}

// reading creates a data serdata of the test type
func reading(t testing.TB, st *ddsi.Sertype, id uint32, value int64, opts ...ddsi.Option) *ddsi.Serdata {
	t.Helper()
	d, err := ddsi.FromSample(st, ddsi.KindData, codec.Sample{"id": id, "value": value}, opts...)
	if err != nil {
		t.Fatalf("FromSample failed: %v", err)
	}
	return d
}

// valueOf decodes the value field of a serdata of the test type
func valueOf(t testing.TB, d *ddsi.Serdata) int64 {
	t.Helper()
	var s codec.Sample
	if err := d.ToSample(&s); err != nil {
		t.Fatalf("ToSample failed: %v", err)
	}
	return s["value"].(int64)
}

// TestQueueBasicOperations tests basic push and consume functionality
func TestQueueBasicOperations(t *testing.T) {
	reg, st := newTestType(t)
	defer st.Release()

	q := NewQueue()
	defer q.Close()

	// Push 10 items
	for i := 0; i < 10; i++ {
		if !q.Push(reading(t, st, uint32(i), int64(i))) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	// Consume 10 items
	for i := 0; i < 10; i++ {
		select {
		case d := <-q.Recv():
			if v := valueOf(t, d); v != int64(i) {
				t.Errorf("Expected %d, got %d", i, v)
			}
			d.RemoveRef()
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	// Make sure queue is empty
	select {
	case d := <-q.Recv():
		t.Errorf("Queue should be empty, but got %v", d)
	case <-time.After(10 * time.Millisecond):
		// Expected timeout, queue is empty
	}

	if reg.LiveSerdata() != 0 {
		t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
	}
	if q.Push(nil) {
		t.Error("Pushing nil must fail")
	}
}

// TestQueueConcurrentProducers verifies the queue works correctly with multiple producers
func TestQueueConcurrentProducers(t *testing.T) {
	reg, st := newTestType(t)
	defer st.Release()

	q := NewQueue()
	defer q.Close()

	const numProducers = 10
	const itemsPerProducer = 500
	totalItems := numProducers * itemsPerProducer

	received := make(map[int64]bool)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for len(received) < totalItems {
			select {
			case d := <-q.Recv():
				if d == nil {
					t.Errorf("Received nil item")
					return
				}
				v := valueOf(t, d)
				if received[v] {
					t.Errorf("Duplicate item received: %d", v)
				}
				received[v] = true
				d.RemoveRef()
			case <-time.After(2 * time.Second):
				t.Errorf("Timeout waiting for items, received %d of %d", len(received), totalItems)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()

			base := producerID * itemsPerProducer
			for i := 0; i < itemsPerProducer; i++ {
				d := reading(t, st, uint32(producerID), int64(base+i))
				if !q.Push(d) {
					t.Errorf("Producer %d failed to push item %d", producerID, i)
					d.RemoveRef()
				}

				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout waiting for consumer to finish")
	}

	if len(received) != totalItems {
		t.Errorf("Expected %d items, got %d", totalItems, len(received))
	}
	if reg.LiveSerdata() != 0 {
		t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
	}
}

// TestQueueClose verifies closing behavior
func TestQueueClose(t *testing.T) {
	reg, st := newTestType(t)
	defer st.Release()

	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Push(reading(t, st, 1, int64(i)))
	}
	q.Close()

	if !q.IsClosed() {
		t.Error("Queue should report closed")
	}

	// Verify we can't push after closing, the caller keeps the reference
	late := reading(t, st, 1, 100)
	if q.Push(late) {
		t.Error("Should not be able to push after queue is closed")
	}
	if late.RefCount() != 1 {
		t.Errorf("Rejected push must not take the reference, refcount %d", late.RefCount())
	}
	late.RemoveRef()

	// Verify we can still read existing items, then the channel is closed
	count := 0
	timeout := time.After(time.Second)
	for {
		select {
		case d, ok := <-q.Recv():
			if !ok {
				if count != 5 {
					t.Errorf("Expected 5 items before close, got %d", count)
				}
				if reg.LiveSerdata() != 0 {
					t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
				}
				return
			}
			if v := valueOf(t, d); v != int64(count) {
				t.Errorf("Expected %d, got %d", count, v)
			}
			count++
			d.RemoveRef()
		case <-timeout:
			t.Fatalf("Timeout waiting for the channel to close, got %d items", count)
		}
	}
}

// TestQueueDiscard verifies that discarding releases every undelivered item
func TestQueueDiscard(t *testing.T) {
	reg, st := newTestType(t)
	defer st.Release()

	q := NewQueue()
	for i := 0; i < 20; i++ {
		q.Push(reading(t, st, uint32(i), int64(i)))
	}

	// receive one item, leave the rest queued
	first := <-q.Recv()

	q.Discard()
	q.Discard() // idempotent

	if reg.LiveSerdata() != 1 {
		t.Errorf("Expected only the received serdata to be live, got %d", reg.LiveSerdata())
	}
	first.RemoveRef()

	if _, ok := <-q.Recv(); ok {
		t.Error("Expected a closed channel after discard")
	}
	if reg.LiveSerdata() != 0 {
		t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
	}
}

// TestQueuePushRacingClose checks that no reference leaks when producers race Close
func TestQueuePushRacingClose(t *testing.T) {
	reg, st := newTestType(t)
	defer st.Release()

	for round := 0; round < 20; round++ {
		q := NewQueue()

		var wg sync.WaitGroup
		wg.Add(4)
		for p := 0; p < 4; p++ {
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					d := reading(t, st, 1, int64(i))
					if !q.Push(d) {
						d.RemoveRef()
					}
				}
			}()
		}

		consumed := make(chan struct{})
		go func() {
			defer close(consumed)
			for d := range q.Recv() {
				d.RemoveRef()
			}
		}()

		runtime.Gosched()
		q.Close()
		wg.Wait()

		select {
		case <-consumed:
		case <-time.After(2 * time.Second):
			t.Fatalf("Round %d: consumer did not finish", round)
		}
	}

	if reg.LiveSerdata() != 0 {
		t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
	}
}

// BenchmarkQueue measures push and receive throughput
func BenchmarkQueue(b *testing.B) {
	_, st := newTestType(b)
	defer st.Release()

	d := reading(b, st, 1, 1)
	defer d.RemoveRef()

	q := NewQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range q.Recv() {
			r.RemoveRef()
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			q.Push(d.AddRef())
		}
	})
	q.Close()
	<-done
}
