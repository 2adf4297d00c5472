package codec

import (
	"fmt"
	"github.com/ValentinKolb/serdata/lib/ddsi"
)

// FormatOps implements ddsi.SerdataOps for dynamic samples whose data payload
// is encoded with a generic format (json, msgpack, gob) instead of CDR.
// The payload is a map from field name to value. Keys use the same big
// endian CDR key stream as CDROps, so key hashes and instance hashes do not
// depend on the payload format.
//
// Thread-safety: FormatOps is stateless and safe for concurrent use.
type FormatOps struct {
	ddsi.BaseOps
	layout *Layout
	format IFormat
}

// NewFormatOps creates the operations for a layout using the given format
func NewFormatOps(layout *Layout, format IFormat) (*FormatOps, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if format == nil {
		return nil, fmt.Errorf("layout %s: no payload format", layout.Name)
	}
	return &FormatOps{layout: layout, format: format}, nil
}

// Layout returns the layout the ops encode
func (o *FormatOps) Layout() *Layout {
	return o.layout
}

// Format returns the payload format
func (o *FormatOps) Format() IFormat {
	return o.format
}

// Descriptor returns the registry descriptor for these ops
func (o *FormatOps) Descriptor() ddsi.Descriptor {
	return o.layout.Descriptor(o.format.Name(), o)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see ddsi.SerdataOps)
// --------------------------------------------------------------------------

func (o *FormatOps) Serialize(kind ddsi.Kind, sample any) ([]byte, error) {
	s, err := asSample(sample)
	if err != nil {
		return nil, err
	}

	if kind == ddsi.KindKey {
		return encodeKey(o.layout, s.lookup)
	}

	record := make(map[string]any, len(o.layout.Fields))
	for i := range o.layout.Fields {
		f := &o.layout.Fields[i]
		v, ok := s[f.Name]
		if !ok {
			return nil, fieldError(f, "missing value")
		}
		// binary inputs are taken as is, base64 is only accepted on decoding
		cv, err := canonicalValue(f, v, false)
		if err != nil {
			return nil, err
		}
		record[f.Name] = cv
	}

	b, err := o.format.Marshal(record)
	if err != nil {
		return nil, ddsi.SerializationErrorf("%s %s: %v", o.format.Name(), o.layout.Name, err)
	}
	return b, nil
}

func (o *FormatOps) Deserialize(kind ddsi.Kind, raw []byte) ([]byte, error) {
	var err error
	if kind == ddsi.KindKey {
		_, err = decodeKey(o.layout, raw)
	} else {
		_, err = o.decode(raw)
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (o *FormatOps) ToSample(kind ddsi.Kind, payload []byte, sample any) error {
	out, ok := sample.(*Sample)
	if !ok {
		if m, isMap := sample.(*map[string]any); isMap {
			out = (*Sample)(m)
		} else {
			return ddsi.NewError(ddsi.RetCTypeMismatch, fmt.Sprintf("%s %s: cannot decode into %T", o.format.Name(), o.layout.Name, sample))
		}
	}

	var (
		decoded Sample
		err     error
	)
	if kind == ddsi.KindKey {
		decoded, err = decodeKey(o.layout, payload)
	} else {
		decoded, err = o.decode(payload)
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

func (o *FormatOps) GetKey(kind ddsi.Kind, payload []byte) ([]byte, error) {
	if kind == ddsi.KindKey {
		key := make([]byte, len(payload))
		copy(key, payload)
		return key, nil
	}
	if o.layout.KeyLess() {
		return nil, nil
	}
	s, err := o.decode(payload)
	if err != nil {
		return nil, err
	}
	return encodeKey(o.layout, s.lookup)
}

// Print renders the sample with its fields in layout order
func (o *FormatOps) Print(d *ddsi.Serdata) string {
	var (
		s   Sample
		err error
	)
	if d.Kind() == ddsi.KindKey {
		s, err = decodeKey(o.layout, d.Payload())
	} else {
		s, err = o.decode(d.Payload())
	}
	if err != nil {
		plog.Warningf("cannot print %s sample: %v", o.layout.Name, err)
		return fmt.Sprintf("%s{<invalid>}", o.layout.Name)
	}
	return o.layout.Name + s.format(o.layout)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// decode parses and validates a data payload
func (o *FormatOps) decode(payload []byte) (Sample, error) {
	var record map[string]any
	if err := o.format.Unmarshal(payload, &record); err != nil {
		return nil, ddsi.SerializationErrorf("%s %s: %v", o.format.Name(), o.layout.Name, err)
	}

	if len(record) != len(o.layout.Fields) {
		for name := range record {
			if _, ok := o.layout.field(name); !ok {
				return nil, ddsi.SerializationErrorf("%s %s: unknown field %s", o.format.Name(), o.layout.Name, name)
			}
		}
	}

	s := make(Sample, len(o.layout.Fields))
	for i := range o.layout.Fields {
		f := &o.layout.Fields[i]
		v, ok := record[f.Name]
		if !ok {
			return nil, fieldError(f, "missing value")
		}
		cv, err := canonicalValue(f, v, !o.format.Binary())
		if err != nil {
			return nil, err
		}
		s[f.Name] = cv
	}
	return s, nil
}
