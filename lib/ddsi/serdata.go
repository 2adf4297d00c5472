package ddsi

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// Serdata
// --------------------------------------------------------------------------

// Serdata is a serialized, immutable, reference counted sample.
//
// A Serdata is created with a reference count of one. Every holder that keeps
// it beyond a call takes its own reference with AddRef and drops it with
// RemoveRef. The holder releasing the last reference frees it through the
// Free operation of its type. Using a Serdata after that point is fatal.
//
// The payload is never modified after construction, so concurrent readers
// need no synchronization beyond the reference they hold.
type Serdata struct {
	refc refCount

	ops     SerdataOps // non-owning, lives as long as the sertype
	kind    Kind
	payload []byte
	key     KeyValue
	hash    uint32

	// weak reference to the sertype: index into the registry arena
	typeID TypeID
	reg    *Registry

	timestamp time.Time
	status    StatusInfo

	freeing atomic.Bool // set while the type's Free operation runs
}

// Option configures optional attributes of a Serdata at construction.
type Option func(*Serdata)

// WithTimestamp sets the source timestamp of the sample
func WithTimestamp(ts time.Time) Option {
	return func(d *Serdata) {
		d.timestamp = ts
	}
}

// WithStatusInfo sets the dispose / unregister flags of the sample
func WithStatusInfo(s StatusInfo) Option {
	return func(d *Serdata) {
		d.status = s
	}
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

// FromSample serializes an application sample using the ops of t.
// The returned Serdata has a reference count of one and is owned by the caller.
func FromSample(t *Sertype, kind Kind, sample any, opts ...Option) (*Serdata, error) {
	if err := checkConstruct(t, kind); err != nil {
		return nil, err
	}

	payload, err := t.desc.Ops.Serialize(kind, sample)
	if err != nil {
		return nil, asSerializationError(t, "serialize", err)
	}

	return t.newSerdata(kind, payload, opts)
}

// FromSer constructs a Serdata from received bytes (receiver side).
// The bytes are copied, the caller keeps ownership of raw.
func FromSer(t *Sertype, kind Kind, raw []byte, opts ...Option) (*Serdata, error) {
	if err := checkConstruct(t, kind); err != nil {
		return nil, err
	}

	rawCopy := make([]byte, len(raw))
	copy(rawCopy, raw)

	payload, err := t.desc.Ops.Deserialize(kind, rawCopy)
	if err != nil {
		return nil, asSerializationError(t, "deserialize", err)
	}

	return t.newSerdata(kind, payload, opts)
}

// checkConstruct validates the common arguments of the constructors
func checkConstruct(t *Sertype, kind Kind) error {
	if t == nil {
		return newErrorf(RetCBadParameter, "nil sertype")
	}
	if !kind.Valid() {
		return newErrorf(RetCBadParameter, "invalid serdata kind %s", kind)
	}
	return nil
}

// asSerializationError keeps ops errors that already carry the serialization
// code and converts everything else into one
func asSerializationError(t *Sertype, op string, err error) error {
	if errors.Is(err, ErrSerialization) {
		return err
	}
	return newErrorf(RetCSerialization, "%s %s: %v", op, t.desc.Name, err)
}

// newSerdata finishes construction: key extraction, hashing and the type reference
func (t *Sertype) newSerdata(kind Kind, payload []byte, opts []Option) (*Serdata, error) {
	d := &Serdata{
		ops:     t.desc.Ops,
		kind:    kind,
		payload: payload,
		typeID:  t.id,
		reg:     t.reg,
	}

	rawKey, err := t.desc.Ops.GetKey(kind, payload)
	if err != nil {
		d.discard()
		return nil, asSerializationError(t, "extract key", err)
	}
	if kind == KindDataWithKey && !t.desc.KeyLess && len(rawKey) == 0 {
		d.discard()
		return nil, newErrorf(RetCSerialization, "extract key %s: empty key for keyed type", t.desc.Name)
	}

	// each serdata keeps its sertype alive
	if !t.refc.tryInc() {
		d.discard()
		return nil, newErrorf(RetCAlreadyDeleted, "sertype %s has been destroyed", t)
	}

	d.key = newKeyValue(rawKey, t.desc.MaxKeySize)
	d.hash = instanceHash(t.reg.seed, t.hash, rawKey)
	d.refc.init()
	for _, opt := range opts {
		opt(d)
	}

	t.reg.metrics.serdataCreated(d.ops.GetSize(d))
	return d, nil
}

// discard hands the payload of a Serdata that failed construction back to
// its ops. The Serdata was never visible to a caller.
func (d *Serdata) discard() {
	d.freeing.Store(true)
	d.ops.Free(d)
	d.freeing.Store(false)
	d.payload = nil
}

// --------------------------------------------------------------------------
// Reference counting
// --------------------------------------------------------------------------

// AddRef takes an additional reference and returns the same Serdata.
// Taking a reference on a freed Serdata is fatal.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Serdata) AddRef() *Serdata {
	if prev := d.refc.inc(); prev == 0 {
		plog.Errorf("addref on freed serdata (type id %d)", d.typeID)
		panic(newErrorf(RetCIllegalOperation, "serdata: addref on freed sample"))
	}
	return d
}

// RemoveRef drops a reference. The caller observing the transition to zero
// frees the Serdata, after that the pointer must not be used anymore.
// Releasing more references than were taken is fatal.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Serdata) RemoveRef() {
	switch d.refc.dec() {
	case 0:
		plog.Errorf("refcount underflow on serdata (type id %d)", d.typeID)
		panic(newErrorf(RetCIllegalOperation, "serdata: refcount underflow"))
	case 1:
		d.free()
	}
}

// RefCount returns the current number of references (diagnostics only)
func (d *Serdata) RefCount() uint32 {
	return d.refc.load()
}

// free runs the type specific free operation and drops the sertype reference
func (d *Serdata) free() {
	t, ok := d.reg.Resolve(d.typeID)
	if !ok {
		plog.Errorf("serdata outlived its sertype (type id %d)", d.typeID)
		panic(newErrorf(RetCAlreadyDeleted, "serdata: sertype %d destroyed before its samples", d.typeID))
	}

	d.freeing.Store(true)
	d.ops.Free(d)
	d.freeing.Store(false)

	d.payload = nil
	d.key = KeyValue{}
	d.reg.metrics.serdataFreed()

	t.Release()
}

// alive panics when the Serdata has already been freed
func (d *Serdata) alive() {
	if d.refc.load() == 0 && !d.freeing.Load() {
		panic(newErrorf(RetCIllegalOperation, "serdata: use after free"))
	}
}

// --------------------------------------------------------------------------
// Accessors (read only, the payload is immutable)
// --------------------------------------------------------------------------

// Kind returns the Serdata kind
func (d *Serdata) Kind() Kind {
	return d.kind
}

// Payload returns the serialized payload. The slice is shared by all holders
// and must not be modified, nor used after the caller's reference is released.
func (d *Serdata) Payload() []byte {
	d.alive()
	return d.payload
}

// Key returns the instance key extracted at construction
func (d *Serdata) Key() KeyValue {
	d.alive()
	return d.key
}

// Hash returns the 32 bit instance hash
func (d *Serdata) Hash() uint32 {
	return d.hash
}

// Size returns the payload size as reported by the type's ops
func (d *Serdata) Size() int {
	d.alive()
	return d.ops.GetSize(d)
}

// TypeID returns the registry index of the Serdata's sertype
func (d *Serdata) TypeID() TypeID {
	return d.typeID
}

// Sertype resolves the sertype of the Serdata without taking a reference.
// The result is valid for as long as the caller holds a reference on d.
func (d *Serdata) Sertype() *Sertype {
	d.alive()
	t, _ := d.reg.Resolve(d.typeID)
	return t
}

// Timestamp returns the source timestamp (zero if none was set)
func (d *Serdata) Timestamp() time.Time {
	return d.timestamp
}

// StatusInfo returns the dispose / unregister flags
func (d *Serdata) StatusInfo() StatusInfo {
	return d.status
}

// ToSample decodes the payload into the application sample pointed to by sample
func (d *Serdata) ToSample(sample any) error {
	d.alive()
	if err := d.ops.ToSample(d.kind, d.payload, sample); err != nil {
		if errors.Is(err, ErrSerialization) || errors.Is(err, ErrTypeMismatch) {
			return err
		}
		return newErrorf(RetCSerialization, "to sample: %v", err)
	}
	return nil
}

// ToUntyped derives a key-only Serdata carrying the same instance key.
// The result is a new Serdata with its own reference owned by the caller.
func (d *Serdata) ToUntyped() (*Serdata, error) {
	d.alive()
	t, ok := d.reg.Resolve(d.typeID)
	if !ok {
		return nil, newErrorf(RetCAlreadyDeleted, "sertype %d destroyed", d.typeID)
	}
	return t.newSerdata(KindKey, d.key.Bytes(), []Option{WithTimestamp(d.timestamp), WithStatusInfo(d.status)})
}

func (d *Serdata) String() string {
	if p, ok := d.ops.(Printer); ok && d.refc.load() > 0 {
		return p.Print(d)
	}
	return fmt.Sprintf("Serdata{Type: %d, Kind: %s, Hash: %08x, Refc: %d}", d.typeID, d.kind, d.hash, d.refc.load())
}

// --------------------------------------------------------------------------
// Dispatch across two samples
// --------------------------------------------------------------------------

// sameType panics when a and b belong to different sertypes
func sameType(a, b *Serdata) {
	if a.reg != b.reg || a.typeID != b.typeID {
		plog.Errorf("operation on serdata of different sertypes (%d, %d)", a.typeID, b.typeID)
		panic(newErrorf(RetCTypeMismatch, "serdata of sertype %d and %d are not comparable", a.typeID, b.typeID))
	}
}

// Compare is a total order over Serdata of the same sertype.
// Comparing Serdata of different sertypes is a programming error and panics.
func Compare(a, b *Serdata) int {
	sameType(a, b)
	a.alive()
	b.alive()
	return a.ops.Compare(a, b)
}

// EqualKey reports whether a and b refer to the same instance of the same sertype
func EqualKey(a, b *Serdata) bool {
	if a.reg != b.reg || a.typeID != b.typeID {
		return false
	}
	return a.Key().Equal(b.Key())
}
