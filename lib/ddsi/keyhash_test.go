package ddsi

import (
	"bytes"
	"crypto/md5"
	"testing"
)

func TestKeyHash(t *testing.T) {
	short := []byte{0, 0, 0, 1, 0, 0, 0, 2}
	long := bytes.Repeat([]byte{0xAB}, 20)

	padded := KeyHash{}
	copy(padded[:], short)

	tests := []struct {
		name       string
		raw        []byte
		maxKeySize int
		want       KeyHash
	}{
		{"BoundedPadded", short, 8, padded},
		{"BoundedExactly16", bytes.Repeat([]byte{1}, 16), 16, KeyHash{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
		{"UnboundedMD5", short, 0, md5.Sum(short)},
		{"BoundedAbove16MD5", short, 17, md5.Sum(short)},
		{"LongMD5", long, 0, md5.Sum(long)},
		{"KeyLess", nil, 0, KeyHash{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newKeyValue(tt.raw, tt.maxKeySize)
			if kv.Hash() != tt.want {
				t.Errorf("Expected key hash %s, got %s", tt.want, kv.Hash())
			}
			if kv.Len() != len(tt.raw) {
				t.Errorf("Expected key length %d, got %d", len(tt.raw), kv.Len())
			}
		})
	}

	if !newKeyValue(nil, 0).Hash().IsZero() {
		t.Error("Key-less types must have a zero key hash")
	}
}

func TestKeyValueOrder(t *testing.T) {
	a := newKeyValue([]byte{0, 1}, 0)
	b := newKeyValue([]byte{0, 2}, 0)

	if a.Compare(b) >= 0 || b.Compare(a) <= 0 || a.Compare(a) != 0 {
		t.Error("Key values must be ordered by their bytes")
	}
	if a.Equal(b) || !a.Equal(newKeyValue([]byte{0, 1}, 0)) {
		t.Error("Equal is wrong")
	}
	if a.String() != "0001" {
		t.Errorf("Unexpected string %q", a.String())
	}
}

func TestInstanceHash(t *testing.T) {
	key := []byte{0, 0, 0, 42}
	th := typeHash("Position", 1)

	if instanceHash(0, th, key) != instanceHash(0, th, key) {
		t.Error("Instance hash must be deterministic")
	}
	if instanceHash(0, th, key) == instanceHash(0, th, []byte{0, 0, 0, 43}) {
		t.Error("Different keys should hash differently")
	}
	if instanceHash(0, th, key) == instanceHash(0, typeHash("Position", 2), key) {
		t.Error("Different types should hash differently")
	}
	if typeHash("Position", 1) != th {
		t.Error("Type hash must be deterministic")
	}
}
