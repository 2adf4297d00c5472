package ddsi

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"testing"
)

// testSample is the application sample of the test type: ID is the key
type testSample struct {
	ID    uint32
	Value string
}

// testOps encodes testSample as a 4 byte big endian key followed by the value
// bytes and counts the calls to Free.
type testOps struct {
	BaseOps
	frees     atomic.Int32
	lastFreed atomic.Int32 // payload length seen by the last Free
}

func (o *testOps) Serialize(kind Kind, sample any) ([]byte, error) {
	var s testSample
	switch v := sample.(type) {
	case testSample:
		s = v
	case *testSample:
		s = *v
	default:
		return nil, fmt.Errorf("unsupported sample %T", sample)
	}
	if s.Value == "invalid" {
		return nil, SerializationErrorf("value %q not allowed", s.Value)
	}

	buf := binary.BigEndian.AppendUint32(nil, s.ID)
	if kind == KindKey {
		return buf, nil
	}
	return append(buf, s.Value...), nil
}

func (o *testOps) Deserialize(kind Kind, raw []byte) ([]byte, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("payload of %d bytes is too short", len(raw))
	}
	if kind == KindKey && len(raw) != 4 {
		return nil, fmt.Errorf("key of %d bytes", len(raw))
	}
	return raw, nil
}

func (o *testOps) ToSample(kind Kind, payload []byte, sample any) error {
	s, ok := sample.(*testSample)
	if !ok {
		return NewError(RetCTypeMismatch, fmt.Sprintf("cannot decode into %T", sample))
	}
	s.ID = binary.BigEndian.Uint32(payload)
	if kind != KindKey {
		s.Value = string(payload[4:])
	}
	return nil
}

// reservedID cannot be keyed, GetKey fails for it
const reservedID = 0xFFFFFFFF

func (o *testOps) GetKey(_ Kind, payload []byte) ([]byte, error) {
	if binary.BigEndian.Uint32(payload) == reservedID {
		return nil, fmt.Errorf("reserved id")
	}
	key := make([]byte, 4)
	copy(key, payload[:4])
	return key, nil
}

func (o *testOps) Free(d *Serdata) {
	o.lastFreed.Store(int32(len(d.Payload())))
	o.frees.Add(1)
}

// newTestType registers the test type in a fresh registry
func newTestType(t *testing.T) (*Registry, *Sertype, *testOps) {
	t.Helper()
	ops := &testOps{}
	reg := NewRegistry(nil)
	st, err := reg.Register(Descriptor{Name: "Test", Version: 1, Ops: ops, MaxKeySize: 4})
	if err != nil {
		t.Fatalf("Failed to register test type: %v", err)
	}
	return reg, st, ops
}

// mustSerdata creates a data serdata or fails the test
func mustSerdata(t *testing.T, st *Sertype, id uint32, value string) *Serdata {
	t.Helper()
	d, err := FromSample(st, KindData, testSample{ID: id, Value: value})
	if err != nil {
		t.Fatalf("FromSample failed: %v", err)
	}
	return d
}

// expectPanic fails the test if fn does not panic with an *Error of the given code
func expectPanic(t *testing.T, code RetCode, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("Expected a panic with code %s", code)
		}
		err, ok := r.(*Error)
		if !ok {
			t.Fatalf("Expected panic value *Error, got %T: %v", r, r)
		}
		if err.Code != code {
			t.Fatalf("Expected panic code %s, got %s", code, err.Code)
		}
	}()
	fn()
}

func TestBaseOps(t *testing.T) {
	_, st, _ := newTestType(t)

	a := mustSerdata(t, st, 1, "aaa")
	defer a.RemoveRef()
	b := mustSerdata(t, st, 1, "bbb")
	defer b.RemoveRef()
	k, err := FromSample(st, KindKey, testSample{ID: 1})
	if err != nil {
		t.Fatalf("FromSample(key) failed: %v", err)
	}
	defer k.RemoveRef()

	base := BaseOps{}
	if base.GetSize(a) != 7 {
		t.Errorf("Expected size 7, got %d", base.GetSize(a))
	}
	if base.Compare(a, a) != 0 {
		t.Error("Expected a serdata to compare equal to itself")
	}
	if base.Compare(a, b) >= 0 {
		t.Error("Expected payload order for equal keys")
	}
	if base.Compare(k, a) >= 0 {
		t.Error("Expected key kind to order before data kind")
	}
}
