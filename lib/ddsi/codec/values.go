package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"math"
	"reflect"
	"strconv"
)

// --------------------------------------------------------------------------
// Value coercion
// --------------------------------------------------------------------------

// Sample is the dynamic representation of a sample: field name to value.
// Decoded samples use the canonical Go type of each field type
// (bool, uint8, int16, uint16, int32, uint32, int64, uint64, float32, float64,
// string, []byte; enums decode as int32).
type Sample map[string]any

// fieldError creates a serialization error for field f
func fieldError(f *Field, format string, args ...interface{}) error {
	return ddsi.SerializationErrorf("field %s (%s): %s", f.Name, f.Type, fmt.Sprintf(format, args...))
}

// toInt64 converts any integral Go value (including integral floats) to int64
func toInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// toUint64 converts any non negative integral Go value to uint64
func toUint64(v any) (uint64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, false
		}
		return uint64(f), true
	default:
		i, ok := toInt64(v)
		if !ok || i < 0 {
			return 0, false
		}
		return uint64(i), true
	}
}

// toFloat64 converts any numeric Go value to float64
func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	default:
		return 0, false
	}
}

// signedInRange checks v against the range of a signed field type
func signedInRange(t FieldType, v int64) bool {
	switch t {
	case TypeInt16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case TypeInt32, TypeEnum:
		return v >= math.MinInt32 && v <= math.MaxInt32
	default:
		return true
	}
}

// unsignedInRange checks v against the range of an unsigned field type
func unsignedInRange(t FieldType, v uint64) bool {
	switch t {
	case TypeUint8:
		return v <= math.MaxUint8
	case TypeUint16:
		return v <= math.MaxUint16
	case TypeUint32:
		return v <= math.MaxUint32
	default:
		return true
	}
}

// --------------------------------------------------------------------------
// Field encoding
// --------------------------------------------------------------------------

// encodeField validates v against f and appends it to e
func encodeField(e *encoder, f *Field, v any) error {
	if v == nil {
		return fieldError(f, "missing value")
	}
	if n, ok := v.(json.Number); ok {
		x, err := numberValue(f, n)
		if err != nil {
			return err
		}
		v = x
	}

	switch f.Type {
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return fieldError(f, "expected bool, got %T", v)
		}
		e.putBool(b)

	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		u, ok := toUint64(v)
		if !ok || !unsignedInRange(f.Type, u) {
			return fieldError(f, "value %v out of range", v)
		}
		switch f.Type {
		case TypeUint8:
			e.putUint8(uint8(u))
		case TypeUint16:
			e.putUint16(uint16(u))
		case TypeUint32:
			e.putUint32(uint32(u))
		default:
			e.putUint64(u)
		}

	case TypeInt16, TypeInt32, TypeInt64:
		i, ok := toInt64(v)
		if !ok || !signedInRange(f.Type, i) {
			return fieldError(f, "value %v out of range", v)
		}
		switch f.Type {
		case TypeInt16:
			e.putUint16(uint16(int16(i)))
		case TypeInt32:
			e.putUint32(uint32(int32(i)))
		default:
			e.putUint64(uint64(i))
		}

	case TypeEnum:
		i, ok := toInt64(v)
		if !ok || !signedInRange(f.Type, i) || !f.validEnumerator(int32(i)) {
			return fieldError(f, "invalid discriminant %v", v)
		}
		e.putUint32(uint32(int32(i)))

	case TypeFloat32:
		x, ok := toFloat64(v)
		if !ok {
			return fieldError(f, "expected a number, got %T", v)
		}
		if !math.IsInf(x, 0) && !math.IsNaN(x) && math.Abs(x) > math.MaxFloat32 {
			return fieldError(f, "value %v out of range", v)
		}
		e.putFloat32(float32(x))

	case TypeFloat64:
		x, ok := toFloat64(v)
		if !ok {
			return fieldError(f, "expected a number, got %T", v)
		}
		e.putFloat64(x)

	case TypeString:
		s, ok := v.(string)
		if !ok {
			return fieldError(f, "expected string, got %T", v)
		}
		if f.Bound > 0 && len(s) > f.Bound {
			return fieldError(f, "length %d exceeds bound %d", len(s), f.Bound)
		}
		e.putString(s)

	case TypeBytes:
		var b []byte
		switch x := v.(type) {
		case []byte:
			b = x
		case string:
			b = []byte(x)
		default:
			return fieldError(f, "expected bytes, got %T", v)
		}
		switch {
		case f.Fixed > 0:
			if len(b) != f.Fixed {
				return fieldError(f, "size mismatch: got %d bytes, want %d", len(b), f.Fixed)
			}
			e.putFixed(b)
		case f.Bound > 0 && len(b) > f.Bound:
			return fieldError(f, "length %d exceeds bound %d", len(b), f.Bound)
		default:
			e.putBytes(b)
		}

	default:
		return fieldError(f, "unsupported field type")
	}
	return nil
}

// decodeField reads one value of field f, validating bounds and discriminants
func decodeField(d *decoder, f *Field) (any, error) {
	var (
		v   any
		err error
	)

	switch f.Type {
	case TypeBool:
		v, err = d.getBool()
	case TypeUint8:
		v, err = d.getUint8()
	case TypeInt16:
		var u uint16
		u, err = d.getUint16()
		v = int16(u)
	case TypeUint16:
		v, err = d.getUint16()
	case TypeInt32:
		var u uint32
		u, err = d.getUint32()
		v = int32(u)
	case TypeUint32:
		v, err = d.getUint32()
	case TypeInt64:
		var u uint64
		u, err = d.getUint64()
		v = int64(u)
	case TypeUint64:
		v, err = d.getUint64()
	case TypeFloat32:
		v, err = d.getFloat32()
	case TypeFloat64:
		v, err = d.getFloat64()
	case TypeEnum:
		var u uint32
		u, err = d.getUint32()
		if err == nil && !f.validEnumerator(int32(u)) {
			return nil, fieldError(f, "invalid discriminant %d", int32(u))
		}
		v = int32(u)
	case TypeString:
		var s string
		s, err = d.getString()
		if err == nil && f.Bound > 0 && len(s) > f.Bound {
			return nil, fieldError(f, "length %d exceeds bound %d", len(s), f.Bound)
		}
		v = s
	case TypeBytes:
		var b []byte
		if f.Fixed > 0 {
			b, err = d.getFixed(f.Fixed)
		} else {
			b, err = d.getBytes()
		}
		if err == nil && f.Bound > 0 && len(b) > f.Bound {
			return nil, fieldError(f, "length %d exceeds bound %d", len(b), f.Bound)
		}
		v = b
	default:
		return nil, fieldError(f, "unsupported field type")
	}

	if err != nil {
		return nil, fieldError(f, "%v", err)
	}
	return v, nil
}

// --------------------------------------------------------------------------
// Key encoding
// --------------------------------------------------------------------------

// encodeKey serializes the key fields of a layout as big endian CDR.
// get returns the value of a named field.
func encodeKey(l *Layout, get func(name string) (any, bool)) ([]byte, error) {
	e := newKeyEncoder(nil)
	for i := range l.Fields {
		f := &l.Fields[i]
		if !f.Key {
			continue
		}
		v, ok := get(f.Name)
		if !ok {
			return nil, fieldError(f, "missing key value")
		}
		if err := encodeField(e, f, v); err != nil {
			return nil, err
		}
	}
	return e.buf, nil
}

// decodeKey parses a big endian key stream into a Sample holding the key fields
func decodeKey(l *Layout, key []byte) (Sample, error) {
	d := newKeyDecoder(key)
	s := make(Sample)
	for i := range l.Fields {
		f := &l.Fields[i]
		if !f.Key {
			continue
		}
		v, err := decodeField(d, f)
		if err != nil {
			return nil, err
		}
		s[f.Name] = v
	}
	if d.remaining() != 0 {
		return nil, ddsi.SerializationErrorf("%d trailing bytes after key", d.remaining())
	}
	return s, nil
}

// --------------------------------------------------------------------------
// Canonical values
// --------------------------------------------------------------------------

// canonicalValue validates v against f and converts it to the canonical Go
// type of the field. Base64 strings are accepted for bytes if textBytes is set.
func canonicalValue(f *Field, v any, textBytes bool) (any, error) {
	if s, ok := v.(string); ok && textBytes && f.Type == TypeBytes {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fieldError(f, "invalid base64: %v", err)
		}
		v = b
	}

	e := newKeyEncoder(nil)
	if err := encodeField(e, f, v); err != nil {
		return nil, err
	}
	return decodeField(newKeyDecoder(e.buf), f)
}

// numberValue converts a json.Number into the Go number type matching f
func numberValue(f *Field, n json.Number) (any, error) {
	switch f.Type {
	case TypeFloat32, TypeFloat64:
		x, err := n.Float64()
		if err != nil {
			return nil, fieldError(f, "%v", err)
		}
		return x, nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return nil, fieldError(f, "value %s out of range", n)
		}
		return u, nil
	default:
		i, err := n.Int64()
		if err != nil {
			return nil, fieldError(f, "value %s out of range", n)
		}
		return i, nil
	}
}
