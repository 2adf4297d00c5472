package ddsi

import (
	"bytes"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// SerdataOps is the per-type operations table. One value exists per data type
// and is shared by every Serdata of that type, it must be safe for concurrent use.
//
// Implementations never see the reference count. The core calls Serialize or
// Deserialize once at construction, GetKey once right after, and Free exactly
// once when the last reference is dropped. If construction fails after the
// payload was produced, Free is called once for the discarded Serdata.
type SerdataOps interface {
	// Serialize converts an application sample into payload bytes for the given kind.
	// Layout violations must be reported with an error matching ErrSerialization.
	Serialize(kind Kind, sample any) ([]byte, error)
	// Deserialize validates received bytes and returns the payload to store.
	// The raw slice is owned by the core and may be returned as is.
	Deserialize(kind Kind, raw []byte) ([]byte, error)
	// ToSample decodes a payload into the application sample pointed to by sample.
	ToSample(kind Kind, payload []byte, sample any) error
	// GetKey extracts the serialized key (big-endian CDR of the key fields) from a payload.
	// It must be deterministic and must not retain or modify payload.
	GetKey(kind Kind, payload []byte) ([]byte, error)
	// Compare orders two Serdata of the same sertype.
	Compare(a, b *Serdata) int
	// GetSize returns the payload size of d in bytes.
	GetSize(d *Serdata) int
	// Free is called once when the last reference to d is released, or when
	// construction of d failed after Serialize or Deserialize succeeded.
	// d.Payload() is still readable, afterwards the core drops the payload.
	Free(d *Serdata)
}

// Printer is an optional SerdataOps extension used by (*Serdata).String
type Printer interface {
	Print(d *Serdata) string
}

// --------------------------------------------------------------------------
// Default implementations
// --------------------------------------------------------------------------

// BaseOps provides default Compare, GetSize and Free operations.
// Embed it into a concrete SerdataOps to only implement the codec part.
type BaseOps struct{}

// Compare orders by kind, then serialized key, then payload bytes
func (BaseOps) Compare(a, b *Serdata) int {
	if a == b {
		return 0
	}
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	if c := a.key.Compare(b.key); c != 0 {
		return c
	}
	return bytes.Compare(a.payload, b.payload)
}

// GetSize returns the payload length
func (BaseOps) GetSize(d *Serdata) int {
	return len(d.payload)
}

// Free does nothing, the core drops the payload after calling it
func (BaseOps) Free(*Serdata) {}
