// Package codec provides concrete ddsi.SerdataOps for dynamic samples.
//
// A Layout describes a data type: its name, version and fields in declaration
// order, some of which form the instance key. Layouts are usually loaded from
// json files (LoadLayouts):
//
//	{
//	  "name": "Position",
//	  "version": 1,
//	  "fields": [
//	    {"name": "id", "type": "uint32", "key": true},
//	    {"name": "x", "type": "float64"},
//	    {"name": "label", "type": "string", "bound": 32}
//	  ]
//	}
//
// Available codecs (NewOps):
//
//   - cdr: XCDR1 encapsulated payload (CDROps), little endian on output,
//     both byte orders accepted on input
//   - json, msgpack, gob: payload encoded with a generic format (FormatOps)
//
// All codecs derive the instance key the same way: the big endian CDR
// serialization of the key fields. Samples are represented as Sample values
// (map[string]any); decoded samples use the canonical Go type of every field.
//
// Usage:
//
//	ops, err := codec.NewOps(layout, "cdr")
//	st, err := reg.Register(ops.Descriptor())
//	d, err := ddsi.FromSample(st, ddsi.KindData, codec.Sample{"id": 7, "x": 1.5, "label": "a"})
package codec
