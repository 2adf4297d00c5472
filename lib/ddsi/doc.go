// Package ddsi implements the serialized sample core of a DDS style
// publish/subscribe middleware: how sample payloads are represented, shared
// between writers, readers and transports, reclaimed, and dispatched to type
// specific operations.
//
// Key Components:
//
//   - Serdata: an immutable, reference counted serialized sample. It is created
//     with FromSample (writer side) or FromSer (receiver side) with a reference
//     count of one, shared with AddRef, released with RemoveRef. The holder that
//     drops the last reference frees it through the Free operation of its type.
//
//   - SerdataOps: the per-type operations table (serialize, deserialize, key
//     extraction, compare, size, free). Concrete implementations live in the
//     codec package or are produced by code generators. BaseOps provides default
//     Compare, GetSize and Free operations.
//
//   - Sertype: a registered data type. Sertypes are reference counted as well;
//     every live Serdata holds a reference on its Sertype, so a type is only
//     destroyed after all its samples.
//
//   - Registry: maps type identities (name + version) to Sertypes. Registration
//     is idempotent. Serdata refer to their type through a TypeID, an index into
//     the registry arena, instead of a pointer.
//
//   - KeyValue / KeyHash: the instance key of a sample (big-endian CDR of the
//     key fields) and the 16 byte DDS key hash derived from it. Every Serdata also
//     carries a 32 bit instance hash for indexing.
//
// Error handling:
//
//	Recoverable errors are returned as *Error values carrying a RetCode
//	(ErrSerialization, ErrNotFound, ErrInconsistentType, ...). Misuse of the
//	reference counts (over-release, use after free, comparing samples of
//	different types) is a programming error and panics.
//
// Thread Safety:
//
//	Reference counting is lock-free and safe for concurrent use. Payloads are
//	written once during construction and only read afterwards. The registry is
//	safe for concurrent use and uses per-key atomic updates.
//
// Usage:
//
//	reg := ddsi.NewRegistry(nil)
//	st, err := reg.Register(ddsi.Descriptor{Name: "Position", Version: 1, Ops: ops})
//	...
//	d, err := ddsi.FromSample(st, ddsi.KindData, sample)
//	reader.Deliver(d.AddRef())   // the reader owns its own reference
//	d.RemoveRef()                // the writer drops its reference
package ddsi
