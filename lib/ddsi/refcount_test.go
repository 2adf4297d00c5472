package ddsi

import (
	"sync"
	"testing"
)

func TestRefCount(t *testing.T) {
	var r refCount
	if r.tryInc() {
		t.Fatal("tryInc must fail on a dead counter")
	}
	if prev := r.dec(); prev != 0 || r.load() != 0 {
		t.Fatalf("dec on a dead counter must not modify it (prev %d, now %d)", prev, r.load())
	}

	r.init()
	if prev := r.inc(); prev != 1 {
		t.Errorf("Expected previous count 1, got %d", prev)
	}
	if r.decIfLast() {
		t.Error("decIfLast must fail while two references exist")
	}
	if prev := r.dec(); prev != 2 {
		t.Errorf("Expected previous count 2, got %d", prev)
	}
	if !r.decIfLast() {
		t.Error("decIfLast must succeed on the last reference")
	}
	if r.load() != 0 {
		t.Errorf("Expected a dead counter, got %d", r.load())
	}
}

// TestRefCountLifecycle walks S through 1 -> 2 -> 1 -> 0 and checks that a
// further release is fatal
func TestRefCountLifecycle(t *testing.T) {
	reg, st, ops := newTestType(t)

	s := mustSerdata(t, st, 1, "value")
	if s.RefCount() != 1 {
		t.Fatalf("Expected refcount 1 after construction, got %d", s.RefCount())
	}

	if s.AddRef() != s {
		t.Fatal("AddRef must return the same serdata")
	}
	if s.RefCount() != 2 {
		t.Fatalf("Expected refcount 2, got %d", s.RefCount())
	}

	s.RemoveRef()
	if s.RefCount() != 1 || ops.frees.Load() != 0 {
		t.Fatalf("Expected refcount 1 and no free (refcount %d, frees %d)", s.RefCount(), ops.frees.Load())
	}

	s.RemoveRef()
	if ops.frees.Load() != 1 {
		t.Fatalf("Expected exactly one free, got %d", ops.frees.Load())
	}
	if ops.lastFreed.Load() != 9 {
		t.Errorf("Free must still see the payload, saw %d bytes", ops.lastFreed.Load())
	}
	if reg.LiveSerdata() != 0 {
		t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
	}

	expectPanic(t, RetCIllegalOperation, s.RemoveRef)
	if ops.frees.Load() != 1 {
		t.Errorf("Over-release must not free again, frees %d", ops.frees.Load())
	}
}

func TestUseAfterFree(t *testing.T) {
	_, st, _ := newTestType(t)

	tests := []struct {
		name string
		fn   func(d *Serdata)
	}{
		{"Payload", func(d *Serdata) { d.Payload() }},
		{"Key", func(d *Serdata) { d.Key() }},
		{"Size", func(d *Serdata) { d.Size() }},
		{"ToSample", func(d *Serdata) { _ = d.ToSample(&testSample{}) }},
		{"AddRef", func(d *Serdata) { d.AddRef() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustSerdata(t, st, 1, "x")
			d.RemoveRef()
			expectPanic(t, RetCIllegalOperation, func() { tt.fn(d) })
		})
	}
}

// TestConcurrentRefCount interleaves AddRef/RemoveRef on many goroutines and
// checks that the serdata is freed exactly once, after the last release
func TestConcurrentRefCount(t *testing.T) {
	const (
		numGoroutines = 50
		opsPerRoutine = 2000
	)

	reg, st, ops := newTestType(t)
	d := mustSerdata(t, st, 7, "shared")

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		own := d.AddRef()
		go func() {
			defer wg.Done()
			defer own.RemoveRef()
			for j := 0; j < opsPerRoutine; j++ {
				own.AddRef()
				if j%3 == 0 {
					own.AddRef()
					own.RemoveRef()
				}
				own.RemoveRef()
			}
		}()
	}
	wg.Wait()

	if ops.frees.Load() != 0 {
		t.Fatalf("Serdata freed while a reference is still held (frees %d)", ops.frees.Load())
	}
	if d.RefCount() != 1 {
		t.Fatalf("Expected refcount 1 after balanced operations, got %d", d.RefCount())
	}

	d.RemoveRef()
	if ops.frees.Load() != 1 {
		t.Errorf("Expected exactly one free, got %d", ops.frees.Load())
	}
	if reg.LiveSerdata() != 0 {
		t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
	}
}

// TestConcurrentLastRelease releases the references of many serdata from many
// goroutines at once
func TestConcurrentLastRelease(t *testing.T) {
	const (
		numSerdata = 200
		holders    = 8
	)

	reg, st, ops := newTestType(t)

	samples := make([]*Serdata, numSerdata)
	for i := range samples {
		samples[i] = mustSerdata(t, st, uint32(i), "v")
		for j := 1; j < holders; j++ {
			samples[i].AddRef()
		}
	}

	var wg sync.WaitGroup
	wg.Add(holders)
	for j := 0; j < holders; j++ {
		go func() {
			defer wg.Done()
			for _, d := range samples {
				// accessors race with the Free of the last holder
				if len(d.Payload()) != 5 || d.Size() != 5 {
					t.Error("Unexpected payload while holding a reference")
				}
				d.RemoveRef()
			}
		}()
	}
	wg.Wait()

	if got := ops.frees.Load(); got != numSerdata {
		t.Errorf("Expected %d frees, got %d", numSerdata, got)
	}
	if got := ops.lastFreed.Load(); got != 5 {
		t.Errorf("Free must see the payload, got length %d", got)
	}
	if reg.LiveSerdata() != 0 {
		t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
	}
	if st.RefCount() != 1 {
		t.Errorf("Expected only the registration reference on the type, got %d", st.RefCount())
	}
}

func BenchmarkAddRemoveRef(b *testing.B) {
	reg := NewRegistry(nil)
	st, err := reg.Register(Descriptor{Name: "Bench", Version: 1, Ops: &testOps{}})
	if err != nil {
		b.Fatal(err)
	}
	d, err := FromSample(st, KindData, testSample{ID: 1, Value: "bench"})
	if err != nil {
		b.Fatal(err)
	}
	defer d.RemoveRef()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			d.AddRef().RemoveRef()
		}
	})
}
