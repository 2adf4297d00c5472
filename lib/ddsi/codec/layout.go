package codec

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Field types
// --------------------------------------------------------------------------

// FieldType is the wire type of a layout field
type FieldType uint8

const (
	TypeBool FieldType = iota + 1
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString // bounded or unbounded string
	TypeBytes  // sequence of octets, or octet array if Fixed is set
	TypeEnum   // 32 bit discriminant restricted to the field's enumerators
)

var fieldTypeNames = map[FieldType]string{
	TypeBool:    "bool",
	TypeUint8:   "uint8",
	TypeInt16:   "int16",
	TypeUint16:  "uint16",
	TypeInt32:   "int32",
	TypeUint32:  "uint32",
	TypeInt64:   "int64",
	TypeUint64:  "uint64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeString:  "string",
	TypeBytes:   "bytes",
	TypeEnum:    "enum",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "FieldType(" + strconv.Itoa(int(t)) + ")"
}

// ParseFieldType converts a type name (e.g. "int32") into a FieldType
func ParseFieldType(s string) (FieldType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range fieldTypeNames {
		if name == s {
			return t, nil
		}
	}
	switch s {
	case "byte", "octet":
		return TypeUint8, nil
	case "boolean":
		return TypeBool, nil
	case "double":
		return TypeFloat64, nil
	case "float":
		return TypeFloat32, nil
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// primitiveSize returns the CDR size (and alignment) of fixed size types, 0 otherwise
func (t FieldType) primitiveSize() int {
	switch t {
	case TypeBool, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32, TypeEnum:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// MarshalJSON encodes the type by name
func (t FieldType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the type from its name
func (t *FieldType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseFieldType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// --------------------------------------------------------------------------
// Layout
// --------------------------------------------------------------------------

// Field describes one member of a type layout
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Key         bool      `json:"key,omitempty"`         // part of the instance key
	Bound       int       `json:"bound,omitempty"`       // maximum length of strings and byte sequences (0 = unbounded)
	Fixed       int       `json:"fixed,omitempty"`       // exact length of an octet array (bytes only)
	Enumerators []int32   `json:"enumerators,omitempty"` // allowed discriminant values (enum only)
}

// validEnumerator reports whether v is an allowed discriminant of the field
func (f *Field) validEnumerator(v int32) bool {
	for _, e := range f.Enumerators {
		if e == v {
			return true
		}
	}
	return false
}

// Layout describes the shape of a data type: its identity, its fields in
// declaration order and which of them form the key.
type Layout struct {
	Name    string  `json:"name"`
	Version uint32  `json:"version"`
	Fields  []Field `json:"fields"`
}

// Validate checks the layout for consistency
func (l *Layout) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("layout without a name")
	}
	seen := make(map[string]bool, len(l.Fields))
	for i := range l.Fields {
		f := &l.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("layout %s: field %d has no name", l.Name, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("layout %s: duplicate field %s", l.Name, f.Name)
		}
		seen[f.Name] = true

		if _, ok := fieldTypeNames[f.Type]; !ok {
			return fmt.Errorf("layout %s: field %s has an invalid type", l.Name, f.Name)
		}
		if f.Bound < 0 || f.Fixed < 0 {
			return fmt.Errorf("layout %s: field %s has a negative bound", l.Name, f.Name)
		}
		if f.Fixed > 0 && f.Type != TypeBytes {
			return fmt.Errorf("layout %s: field %s: fixed length is only allowed for bytes", l.Name, f.Name)
		}
		if f.Bound > 0 && f.Type != TypeBytes && f.Type != TypeString {
			return fmt.Errorf("layout %s: field %s: bound is only allowed for strings and bytes", l.Name, f.Name)
		}
		if f.Type == TypeEnum && len(f.Enumerators) == 0 {
			return fmt.Errorf("layout %s: enum field %s has no enumerators", l.Name, f.Name)
		}
		if f.Type != TypeEnum && len(f.Enumerators) > 0 {
			return fmt.Errorf("layout %s: field %s: enumerators are only allowed for enums", l.Name, f.Name)
		}
	}
	return nil
}

// KeyFields returns the key fields in declaration order
func (l *Layout) KeyFields() []Field {
	var keys []Field
	for _, f := range l.Fields {
		if f.Key {
			keys = append(keys, f)
		}
	}
	return keys
}

// KeyLess reports whether the layout has no key fields
func (l *Layout) KeyLess() bool {
	for _, f := range l.Fields {
		if f.Key {
			return false
		}
	}
	return true
}

// MaxKeySize returns the maximum size of the serialized key, or 0 if a key
// field is unbounded
func (l *Layout) MaxKeySize() int {
	pos := 0
	for _, f := range l.Fields {
		if !f.Key {
			continue
		}
		switch {
		case f.Type.primitiveSize() > 0:
			size := f.Type.primitiveSize()
			pos = alignUp(pos, size) + size
		case f.Type == TypeBytes && f.Fixed > 0:
			pos += f.Fixed
		case f.Type == TypeString && f.Bound > 0:
			pos = alignUp(pos, 4) + 4 + f.Bound + 1
		case f.Type == TypeBytes && f.Bound > 0:
			pos = alignUp(pos, 4) + 4 + f.Bound
		default:
			return 0
		}
	}
	return pos
}

// Fingerprint hashes the canonical form of the fields
func (l *Layout) Fingerprint() ddsi.Fingerprint {
	return md5.Sum([]byte(l.canonical()))
}

// canonical renders the fields in a stable textual form
func (l *Layout) canonical() string {
	var sb strings.Builder
	for _, f := range l.Fields {
		sb.WriteString(fmt.Sprintf("%s:%s:%t:%d:%d:%v;", f.Name, f.Type, f.Key, f.Bound, f.Fixed, f.Enumerators))
	}
	return sb.String()
}

// Descriptor builds the registry descriptor of the layout for ops encoding
// payloads with the named codec. The fingerprint covers the codec, so the
// same layout registered with another codec is an inconsistent type.
func (l *Layout) Descriptor(codec string, ops ddsi.SerdataOps) ddsi.Descriptor {
	return ddsi.Descriptor{
		Name:        l.Name,
		Version:     l.Version,
		Ops:         ops,
		KeyLess:     l.KeyLess(),
		MaxKeySize:  l.MaxKeySize(),
		Fingerprint: md5.Sum([]byte(codec + "|" + l.canonical())),
	}
}

// field returns the field with the given name
func (l *Layout) field(name string) (*Field, bool) {
	for i := range l.Fields {
		if l.Fields[i].Name == name {
			return &l.Fields[i], true
		}
	}
	return nil, false
}

// alignUp rounds pos up to a multiple of n
func alignUp(pos, n int) int {
	if rem := pos % n; rem != 0 {
		return pos + n - rem
	}
	return pos
}
