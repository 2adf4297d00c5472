package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"github.com/vmihailenco/msgpack/v5"
)

// IFormat is the interface for the generic payload formats used by FormatOps
type IFormat interface {
	// Name returns the name of the format (as used by NewOps)
	Name() string
	// Marshal encodes a value into a byte array
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes a byte array into the value pointed to by v
	Unmarshal(b []byte, v any) error
	// Binary reports whether byte slices survive a round trip unchanged
	// (text formats encode them as base64 strings)
	Binary() bool
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

// NewJSONFormat creates a format using json encoding
func NewJSONFormat() IFormat {
	return &jsonFormatImpl{}
}

// jsonFormatImpl implements the IFormat interface using json encoding.
// Numbers are decoded as json.Number so 64 bit integers keep their precision.
type jsonFormatImpl struct {
}

func (j jsonFormatImpl) Name() string {
	return "json"
}

func (j jsonFormatImpl) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (j jsonFormatImpl) Unmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after json value")
	}
	return nil
}

func (j jsonFormatImpl) Binary() bool {
	return false
}

// --------------------------------------------------------------------------
// Gob
// --------------------------------------------------------------------------

// NewGOBFormat creates a format using Go's binary gob format.
// Gob encodes maps in iteration order, so payloads of equal samples may differ.
func NewGOBFormat() IFormat {
	return &gobFormatImpl{}
}

// gobFormatImpl implements the IFormat interface using gob encoding
type gobFormatImpl struct {
}

func (g gobFormatImpl) Name() string {
	return "gob"
}

func (g gobFormatImpl) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobFormatImpl) Unmarshal(b []byte, v any) error {
	buf := bytes.NewBuffer(b)
	dec := gob.NewDecoder(buf)
	return dec.Decode(v)
}

func (g gobFormatImpl) Binary() bool {
	return true
}

// --------------------------------------------------------------------------
// MessagePack
// --------------------------------------------------------------------------

// NewMsgpackFormat creates a format using MessagePack. Map keys are sorted,
// so equal samples always produce equal payloads.
func NewMsgpackFormat() IFormat {
	return &msgpackFormatImpl{}
}

// msgpackFormatImpl implements the IFormat interface using MessagePack
type msgpackFormatImpl struct {
}

func (m msgpackFormatImpl) Name() string {
	return "msgpack"
}

func (m msgpackFormatImpl) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("msgpack serialization failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (m msgpackFormatImpl) Unmarshal(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("msgpack deserialization failed: %w", err)
	}
	return nil
}

func (m msgpackFormatImpl) Binary() bool {
	return true
}
