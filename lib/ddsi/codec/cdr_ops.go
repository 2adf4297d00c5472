package codec

import (
	"fmt"
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/lni/dragonboat/v4/logger"
	"strings"
	"sync"
)

var plog = logger.GetLogger("codec")

// maxPooledBuffer is the largest payload buffer returned to the pool on free
const maxPooledBuffer = 64 * 1024

// --------------------------------------------------------------------------
// CDR operations
// --------------------------------------------------------------------------

// CDROps implements ddsi.SerdataOps for dynamic samples (codec.Sample or
// map[string]any) encoded as XCDR1 according to a Layout.
//
// Data payloads carry a 4 byte encapsulation header followed by the little
// endian body. Received payloads may use either byte order. Key-only payloads
// are the big endian key stream itself.
//
// Payload buffers are pooled: once a Serdata is freed its buffer is reused.
//
// Thread-safety: CDROps is stateless apart from the buffer pool and safe for concurrent use.
type CDROps struct {
	ddsi.BaseOps
	layout *Layout
	pool   sync.Pool
}

// NewCDR creates the CDR operations for a layout
func NewCDR(layout *Layout) (*CDROps, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	ops := &CDROps{layout: layout}
	ops.pool.New = func() any {
		b := make([]byte, 0, 256)
		return &b
	}
	return ops, nil
}

// Layout returns the layout the ops encode
func (c *CDROps) Layout() *Layout {
	return c.layout
}

// Descriptor returns the registry descriptor for these ops
func (c *CDROps) Descriptor() ddsi.Descriptor {
	return c.layout.Descriptor("cdr", c)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see ddsi.SerdataOps)
// --------------------------------------------------------------------------

func (c *CDROps) Serialize(kind ddsi.Kind, sample any) ([]byte, error) {
	s, err := asSample(sample)
	if err != nil {
		return nil, err
	}

	if kind == ddsi.KindKey {
		return encodeKey(c.layout, s.lookup)
	}

	bp := c.pool.Get().(*[]byte)
	e := newDataEncoder(*bp)
	for i := range c.layout.Fields {
		f := &c.layout.Fields[i]
		v, ok := s[f.Name]
		if !ok {
			c.pool.Put(bp)
			return nil, fieldError(f, "missing value")
		}
		if err := encodeField(e, f, v); err != nil {
			c.pool.Put(bp)
			return nil, err
		}
	}
	return e.buf, nil
}

func (c *CDROps) Deserialize(kind ddsi.Kind, raw []byte) ([]byte, error) {
	if kind == ddsi.KindKey {
		if _, err := decodeKey(c.layout, raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	if _, err := c.decode(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *CDROps) ToSample(kind ddsi.Kind, payload []byte, sample any) error {
	out, ok := sample.(*Sample)
	if !ok {
		if m, isMap := sample.(*map[string]any); isMap {
			out = (*Sample)(m)
		} else {
			return ddsi.NewError(ddsi.RetCTypeMismatch, fmt.Sprintf("cdr %s: cannot decode into %T", c.layout.Name, sample))
		}
	}

	var (
		decoded Sample
		err     error
	)
	if kind == ddsi.KindKey {
		decoded, err = decodeKey(c.layout, payload)
	} else {
		decoded, err = c.decode(payload)
	}
	if err != nil {
		return err
	}

	if *out == nil {
		*out = decoded
		return nil
	}
	for k, v := range decoded {
		(*out)[k] = v
	}
	return nil
}

func (c *CDROps) GetKey(kind ddsi.Kind, payload []byte) ([]byte, error) {
	if kind == ddsi.KindKey {
		key := make([]byte, len(payload))
		copy(key, payload)
		return key, nil
	}
	if c.layout.KeyLess() {
		return nil, nil
	}
	s, err := c.decode(payload)
	if err != nil {
		return nil, err
	}
	return encodeKey(c.layout, s.lookup)
}

func (c *CDROps) Free(d *ddsi.Serdata) {
	b := d.Payload()
	if cap(b) == 0 || cap(b) > maxPooledBuffer {
		return
	}
	b = b[:0]
	c.pool.Put(&b)
}

// Print renders the sample with its fields in layout order
func (c *CDROps) Print(d *ddsi.Serdata) string {
	var (
		s   Sample
		err error
	)
	if d.Kind() == ddsi.KindKey {
		s, err = decodeKey(c.layout, d.Payload())
	} else {
		s, err = c.decode(d.Payload())
	}
	if err != nil {
		plog.Warningf("cannot print %s sample: %v", c.layout.Name, err)
		return fmt.Sprintf("%s{<invalid>}", c.layout.Name)
	}
	return c.layout.Name + s.format(c.layout)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// decode parses a full data payload
func (c *CDROps) decode(payload []byte) (Sample, error) {
	d, err := newDataDecoder(payload)
	if err != nil {
		return nil, ddsi.SerializationErrorf("cdr %s: %v", c.layout.Name, err)
	}
	s := make(Sample, len(c.layout.Fields))
	for i := range c.layout.Fields {
		f := &c.layout.Fields[i]
		v, err := decodeField(d, f)
		if err != nil {
			return nil, err
		}
		s[f.Name] = v
	}
	return s, nil
}

// asSample accepts the supported dynamic sample representations
func asSample(sample any) (Sample, error) {
	switch s := sample.(type) {
	case Sample:
		return s, nil
	case map[string]any:
		return s, nil
	case *Sample:
		if s != nil {
			return *s, nil
		}
	case *map[string]any:
		if s != nil {
			return *s, nil
		}
	}
	return nil, ddsi.SerializationErrorf("unsupported sample type %T (expected codec.Sample)", sample)
}

// lookup returns the value of a field
func (s Sample) lookup(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// format prints the fields present in s in layout order
func (s Sample) format(l *Layout) string {
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for _, f := range l.Fields {
		v, ok := s[f.Name]
		if !ok {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		if f.Key {
			sb.WriteString("*")
		}
		sb.WriteString(fmt.Sprintf("%s: %v", f.Name, v))
	}
	sb.WriteString("}")
	return sb.String()
}
