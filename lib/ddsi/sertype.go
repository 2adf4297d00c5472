package ddsi

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Type descriptor
// --------------------------------------------------------------------------

// TypeID is the registry index of a Sertype. Zero is never assigned.
type TypeID uint32

// Fingerprint identifies the layout of a type, zero means "not checked"
type Fingerprint [16]byte

// IsZero reports whether the fingerprint is unset
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// Descriptor is the pre-validated description of a data type as produced by
// code generation or by the codec package. The registry treats it as opaque
// apart from the fields below.
type Descriptor struct {
	Name    string     // type name, part of the type identity
	Version uint32     // type version, part of the type identity
	Ops     SerdataOps // operations shared by every sample of the type

	KeyLess     bool        // the type has no key fields
	MaxKeySize  int         // bounded maximum serialized key size (0 = unbounded)
	Fingerprint Fingerprint // layout fingerprint used to detect conflicting registrations
}

// validate checks the descriptor fields the core relies on
func (d *Descriptor) validate() error {
	if d.Name == "" {
		return newErrorf(RetCBadParameter, "descriptor without a type name")
	}
	if d.Ops == nil {
		return newErrorf(RetCBadParameter, "descriptor %s has no serdata ops", d.Name)
	}
	if d.MaxKeySize < 0 {
		return newErrorf(RetCBadParameter, "descriptor %s has a negative maximum key size", d.Name)
	}
	return nil
}

// --------------------------------------------------------------------------
// Sertype
// --------------------------------------------------------------------------

// Sertype is a registered data type. It is reference counted: every Register
// or Lookup result and every live Serdata of the type hold one reference.
// When the last reference is released the type leaves its registry.
type Sertype struct {
	desc Descriptor
	id   TypeID
	hash uint32
	refc refCount
	reg  *Registry
}

// Name returns the type name
func (t *Sertype) Name() string {
	return t.desc.Name
}

// Version returns the type version
func (t *Sertype) Version() uint32 {
	return t.desc.Version
}

// Ops returns the operations table of the type
func (t *Sertype) Ops() SerdataOps {
	return t.desc.Ops
}

// KeyLess reports whether the type has no key fields
func (t *Sertype) KeyLess() bool {
	return t.desc.KeyLess
}

// MaxKeySize returns the bounded maximum key size (0 = unbounded)
func (t *Sertype) MaxKeySize() int {
	return t.desc.MaxKeySize
}

// Fingerprint returns the layout fingerprint of the descriptor
func (t *Sertype) Fingerprint() Fingerprint {
	return t.desc.Fingerprint
}

// ID returns the registry index of the type
func (t *Sertype) ID() TypeID {
	return t.id
}

// Hash returns the 32 bit type hash (derived from name and version)
func (t *Sertype) Hash() uint32 {
	return t.hash
}

// RefCount returns the current number of references (diagnostics only)
func (t *Sertype) RefCount() uint32 {
	return t.refc.load()
}

// Alive reports whether the type is still registered
func (t *Sertype) Alive() bool {
	return t.refc.load() > 0
}

// AddRef takes an additional reference on the type.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Sertype) AddRef() *Sertype {
	if !t.refc.tryInc() {
		plog.Errorf("addref on destroyed sertype %s", t)
		panic(newErrorf(RetCAlreadyDeleted, "sertype: addref on destroyed type %s", t))
	}
	return t
}

// Release drops a reference. Dropping the last one removes the type from its
// registry. Releasing more references than were taken is fatal.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Sertype) Release() {
	switch t.refc.dec() {
	case 0:
		plog.Errorf("refcount underflow on sertype %s", t)
		panic(newErrorf(RetCIllegalOperation, "sertype: refcount underflow on %s", t))
	case 1:
		t.reg.remove(t)
	}
}

func (t *Sertype) String() string {
	return fmt.Sprintf("%s@%d", t.desc.Name, t.desc.Version)
}
