package codec

import (
	"bytes"
	"errors"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"math"
	"testing"
)

// fullLayout uses every field type
func fullLayout() *Layout {
	return &Layout{
		Name:    "Full",
		Version: 2,
		Fields: []Field{
			{Name: "id", Type: TypeUint64, Key: true},
			{Name: "code", Type: TypeString, Key: true, Bound: 8},
			{Name: "on", Type: TypeBool},
			{Name: "small", Type: TypeUint8},
			{Name: "delta", Type: TypeInt16},
			{Name: "port", Type: TypeUint16},
			{Name: "temp", Type: TypeInt32},
			{Name: "count", Type: TypeUint32},
			{Name: "big", Type: TypeInt64},
			{Name: "ratio", Type: TypeFloat32},
			{Name: "value", Type: TypeFloat64},
			{Name: "label", Type: TypeString},
			{Name: "blob", Type: TypeBytes},
			{Name: "digest", Type: TypeBytes, Fixed: 4},
			{Name: "color", Type: TypeEnum, Enumerators: []int32{1, 2, 3}},
		},
	}
}

// fullSample uses loose Go types, fullCanonical is what every codec decodes it to
func fullSample() Sample {
	return Sample{
		"id": uint64(math.MaxUint64), "code": "k1", "on": true, "small": 200, "delta": -300,
		"port": 8080, "temp": -40, "count": 7, "big": int64(math.MinInt64), "ratio": float32(1.25),
		"value": 3.5, "label": "hello", "blob": []byte{0, 1, 2}, "digest": []byte{9, 8, 7, 6}, "color": 2,
	}
}

func fullCanonical() Sample {
	return Sample{
		"id": uint64(math.MaxUint64), "code": "k1", "on": true, "small": uint8(200), "delta": int16(-300),
		"port": uint16(8080), "temp": int32(-40), "count": uint32(7), "big": int64(math.MinInt64), "ratio": float32(1.25),
		"value": 3.5, "label": "hello", "blob": []byte{0, 1, 2}, "digest": []byte{9, 8, 7, 6}, "color": int32(2),
	}
}

func newType(t *testing.T, l *Layout, codec string) (*ddsi.Registry, *ddsi.Sertype) {
	t.Helper()
	reg := ddsi.NewRegistry(nil)
	types, err := RegisterLayouts(reg, []*Layout{l}, codec)
	if err != nil {
		t.Fatalf("RegisterLayouts(%s) failed: %v", codec, err)
	}
	t.Cleanup(types[0].Release)
	return reg, types[0]
}

func TestCodecRoundTrip(t *testing.T) {
	for _, codec := range Codecs {
		t.Run(codec, func(t *testing.T) {
			reg, st := newType(t, fullLayout(), codec)

			d, err := ddsi.FromSample(st, ddsi.KindData, fullSample())
			if err != nil {
				t.Fatalf("FromSample failed: %v", err)
			}

			var out Sample
			if err := d.ToSample(&out); err != nil {
				t.Fatalf("ToSample failed: %v", err)
			}
			assertSample(t, fullCanonical(), out)

			// the receiving side sees the same instance
			raw := append([]byte(nil), d.Payload()...)
			r, err := ddsi.FromSer(st, ddsi.KindData, raw)
			if err != nil {
				t.Fatalf("FromSer failed: %v", err)
			}
			if !ddsi.EqualKey(d, r) || d.Hash() != r.Hash() {
				t.Error("Received serdata must have the key of the sent one")
			}

			var out2 map[string]any
			if err := r.ToSample(&out2); err != nil {
				t.Fatalf("ToSample(map) failed: %v", err)
			}
			assertSample(t, fullCanonical(), out2)

			d.RemoveRef()
			r.RemoveRef()
			if reg.LiveSerdata() != 0 {
				t.Errorf("Expected no live serdata, got %d", reg.LiveSerdata())
			}
		})
	}
}

// TestCodecKeysAgree checks that the key stream does not depend on the payload codec
func TestCodecKeysAgree(t *testing.T) {
	var (
		refKey  []byte
		refHash uint32
	)
	for i, codec := range Codecs {
		_, st := newType(t, fullLayout(), codec)

		d, err := ddsi.FromSample(st, ddsi.KindData, fullSample())
		if err != nil {
			t.Fatalf("%s: FromSample failed: %v", codec, err)
		}
		if i == 0 {
			refKey, refHash = d.Key().Bytes(), d.Hash()
		} else {
			if !bytes.Equal(refKey, d.Key().Bytes()) {
				t.Errorf("%s: key %x differs from %x", codec, d.Key().Bytes(), refKey)
			}
			if refHash != d.Hash() {
				t.Errorf("%s: instance hash %08x differs from %08x", codec, d.Hash(), refHash)
			}
		}
		d.RemoveRef()
	}
}

func TestCodecConflict(t *testing.T) {
	reg := ddsi.NewRegistry(nil)
	types, err := RegisterLayouts(reg, []*Layout{smallLayout()}, "cdr")
	if err != nil {
		t.Fatal(err)
	}
	defer types[0].Release()

	// same name and version with another payload encoding
	if _, err := RegisterLayouts(reg, []*Layout{smallLayout()}, "json"); !errors.Is(err, ddsi.ErrInconsistentType) {
		t.Errorf("Expected ErrInconsistentType, got %v", err)
	}

	again, err := RegisterLayouts(reg, []*Layout{smallLayout()}, "xcdr1")
	if err != nil {
		t.Fatalf("Registering with a codec alias failed: %v", err)
	}
	if again[0] != types[0] {
		t.Error("Expected the existing sertype")
	}
	again[0].Release()
}

func TestMsgpackDeterministic(t *testing.T) {
	_, st := newType(t, fullLayout(), "msgpack")

	a, err := ddsi.FromSample(st, ddsi.KindData, fullSample())
	if err != nil {
		t.Fatal(err)
	}
	defer a.RemoveRef()
	b, err := ddsi.FromSample(st, ddsi.KindData, fullCanonical())
	if err != nil {
		t.Fatal(err)
	}
	defer b.RemoveRef()

	if !bytes.Equal(a.Payload(), b.Payload()) {
		t.Error("Equal samples must produce equal msgpack payloads")
	}
	if ddsi.Compare(a, b) != 0 {
		t.Error("Equal payloads must compare equal")
	}
}

func TestJSONPayload(t *testing.T) {
	l := &Layout{
		Name: "Reading",
		Fields: []Field{
			{Name: "id", Type: TypeUint64, Key: true},
			{Name: "raw", Type: TypeBytes},
		},
	}
	_, st := newType(t, l, "json")

	d, err := ddsi.FromSample(st, ddsi.KindData, Sample{"id": uint64(math.MaxUint64), "raw": []byte("hi")})
	if err != nil {
		t.Fatal(err)
	}
	defer d.RemoveRef()

	want := `{"id":18446744073709551615,"raw":"aGk="}`
	if string(d.Payload()) != want {
		t.Errorf("Expected payload %s, got %s", want, d.Payload())
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"Valid", `{"id": 3, "raw": ""}`, false},
		{"UnknownField", `{"id": 3, "raw": "", "extra": 1}`, true},
		{"MissingField", `{"id": 3}`, true},
		{"NegativeUnsigned", `{"id": -3, "raw": ""}`, true},
		{"Overflow", `{"id": 18446744073709551616, "raw": ""}`, true},
		{"InvalidBase64", `{"id": 3, "raw": "***"}`, true},
		{"TrailingData", `{"id": 3, "raw": ""} {}`, true},
		{"NotAnObject", `[1, 2]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ddsi.FromSer(st, ddsi.KindData, []byte(tt.payload))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("FromSer failed: %v", err)
				}
				r.RemoveRef()
				return
			}
			if !errors.Is(err, ddsi.ErrSerialization) {
				t.Errorf("Expected ErrSerialization, got %v", err)
			}
		})
	}
}

func TestFormatOpsErrors(t *testing.T) {
	if _, err := NewFormatOps(smallLayout(), nil); err == nil {
		t.Error("Expected an error without a format")
	}
	if _, err := NewOps(smallLayout(), "yaml"); err == nil {
		t.Error("Expected an error for an unknown codec")
	}

	_, st := newType(t, smallLayout(), "gob")

	s := smallSample()
	s["count"] = 1 << 20
	if _, err := ddsi.FromSample(st, ddsi.KindData, s); !errors.Is(err, ddsi.ErrSerialization) {
		t.Errorf("Expected ErrSerialization for an out of range value, got %v", err)
	}

	d, err := ddsi.FromSample(st, ddsi.KindData, smallSample())
	if err != nil {
		t.Fatal(err)
	}
	defer d.RemoveRef()

	var wrong []string
	if err := d.ToSample(&wrong); !errors.Is(err, ddsi.ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch, got %v", err)
	}

	// decoding into an existing sample merges the fields
	out := Sample{"local": "kept"}
	if err := d.ToSample(&out); err != nil {
		t.Fatal(err)
	}
	if out["local"] != "kept" || out["name"] != "ab" {
		t.Errorf("Unexpected merged sample %v", out)
	}
}
