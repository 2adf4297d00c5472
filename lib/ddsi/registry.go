package ddsi

import (
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"sort"
	"sync/atomic"
)

var plog = logger.GetLogger("ddsi")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Registry during initialization
type Options struct {
	Seed          uint64 // Seed of the instance hash (ignored if RandomSeed is set)
	RandomSeed    bool   // Generate a random seed for this registry
	MetricsPrefix string // Prefix of the exported metric names ("" = "ddsi")
}

// DefaultOptions returns the default registry options
func DefaultOptions() *Options {
	return &Options{
		Seed:          0,
		RandomSeed:    false,
		MetricsPrefix: "ddsi",
	}
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// versions holds all live versions of one type name, sorted by version.
// A versions slice is never modified in place, updates replace it.
type versions []*Sertype

// Registry maps type identities (name + version) to Sertypes. Sertypes are kept
// in an arena indexed by TypeID, which is what Serdata use to refer to their type.
type Registry struct {
	seed    uint64
	byName  *xsync.MapOf[string, versions]
	byID    *xsync.MapOf[TypeID, *Sertype]
	nextID  atomic.Uint32
	metrics *registryMetrics
}

// NewRegistry creates a new Registry with the specified options (optional)
func NewRegistry(opts *Options) *Registry {
	if opts == nil {
		opts = DefaultOptions()
	}

	seed := opts.Seed
	if opts.RandomSeed {
		seed = generateSeed()
	}

	prefix := opts.MetricsPrefix
	if prefix == "" {
		prefix = "ddsi"
	}

	r := &Registry{
		seed:   seed,
		byName: xsync.NewMapOf[string, versions](),
		byID:   xsync.NewMapOf[TypeID, *Sertype](),
	}
	r.metrics = newRegistryMetrics(prefix, r)
	return r
}

// Seed returns the instance hash seed of the registry
func (r *Registry) Seed() uint64 {
	return r.seed
}

// Register returns the Sertype for the descriptor, creating it if needed.
// Registering the same identity (name + version) again returns the existing
// type with an additional reference. A descriptor whose fingerprint differs
// from the registered one is rejected with ErrInconsistentType.
// The caller owns one reference on the result and must Release it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) Register(desc Descriptor) (*Sertype, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}

	var (
		result  *Sertype
		err     error
		created bool
	)

	r.byName.Compute(desc.Name, func(old versions, loaded bool) (versions, bool) {
		idx := sort.Search(len(old), func(i int) bool { return old[i].desc.Version >= desc.Version })

		if idx < len(old) && old[idx].desc.Version == desc.Version {
			existing := old[idx]

			// same identity, different layout
			if !desc.Fingerprint.IsZero() && !existing.desc.Fingerprint.IsZero() &&
				desc.Fingerprint != existing.desc.Fingerprint {
				err = newErrorf(RetCInconsistentPolicy, "sertype %s already registered with a different layout", existing)
				return old, false
			}

			if existing.refc.tryInc() {
				result = existing
				return old, false
			}

			// the existing type is being destroyed, replace it
			result = r.newSertype(desc)
			created = true
			updated := make(versions, len(old))
			copy(updated, old)
			updated[idx] = result
			return updated, false
		}

		result = r.newSertype(desc)
		created = true
		updated := make(versions, 0, len(old)+1)
		updated = append(updated, old[:idx]...)
		updated = append(updated, result)
		updated = append(updated, old[idx:]...)
		return updated, false
	})

	if err != nil {
		plog.Warningf("rejected registration of %s@%d: %v", desc.Name, desc.Version, err)
		return nil, err
	}

	if created {
		r.metrics.typeRegistered()
		plog.Debugf("registered sertype %s (id %d)", result, result.id)
	}
	return result, nil
}

// newSertype allocates a sertype and stores it in the arena
func (r *Registry) newSertype(desc Descriptor) *Sertype {
	t := &Sertype{
		desc: desc,
		id:   TypeID(r.nextID.Add(1)),
		hash: typeHash(desc.Name, desc.Version),
		reg:  r,
	}
	t.refc.init()
	r.byID.Store(t.id, t)
	return t
}

// Lookup returns the highest live version registered under name.
// The caller owns one reference on the result and must Release it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) Lookup(name string) (*Sertype, error) {
	vs, ok := r.byName.Load(name)
	if ok {
		for i := len(vs) - 1; i >= 0; i-- {
			if vs[i].refc.tryInc() {
				return vs[i], nil
			}
		}
	}
	return nil, newErrorf(RetCNotFound, "sertype %q is not registered", name)
}

// LookupVersion returns the type registered under name and version.
// The caller owns one reference on the result and must Release it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) LookupVersion(name string, version uint32) (*Sertype, error) {
	vs, ok := r.byName.Load(name)
	if ok {
		for _, t := range vs {
			if t.desc.Version == version && t.refc.tryInc() {
				return t, nil
			}
		}
	}
	return nil, newErrorf(RetCNotFound, "sertype %s@%d is not registered", name, version)
}

// Resolve returns the live type stored at id without taking a reference.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) Resolve(id TypeID) (*Sertype, bool) {
	t, ok := r.byID.Load(id)
	if !ok || t.refc.load() == 0 {
		return nil, false
	}
	return t, true
}

// Unregister destroys t if the caller holds the last reference on it.
// While other holders (including live Serdata) exist it fails with ErrPreconditionNotMet.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) Unregister(t *Sertype) error {
	if t == nil || t.reg != r {
		return newErrorf(RetCBadParameter, "sertype does not belong to this registry")
	}
	if t.refc.decIfLast() {
		r.remove(t)
		return nil
	}
	if n := t.refc.load(); n > 0 {
		return newErrorf(RetCPreconditionNotMet, "sertype %s still has %d references", t, n)
	}
	return newErrorf(RetCAlreadyDeleted, "sertype %s has already been destroyed", t)
}

// remove takes a dead type out of both indexes
func (r *Registry) remove(t *Sertype) {
	r.byName.Compute(t.desc.Name, func(old versions, loaded bool) (versions, bool) {
		if !loaded {
			return old, true
		}
		idx := -1
		for i, v := range old {
			if v == t {
				idx = i
				break
			}
		}
		if idx < 0 {
			// already replaced by a new registration
			return old, false
		}
		if len(old) == 1 {
			return nil, true
		}
		updated := make(versions, 0, len(old)-1)
		updated = append(updated, old[:idx]...)
		updated = append(updated, old[idx+1:]...)
		return updated, false
	})
	r.byID.Delete(t.id)

	r.metrics.typeDestroyed()
	plog.Debugf("destroyed sertype %s (id %d)", t, t.id)
}

// Types returns a snapshot of all live types, ordered by name and version.
// No references are taken.
func (r *Registry) Types() []*Sertype {
	types := make([]*Sertype, 0, r.byID.Size())
	r.byID.Range(func(_ TypeID, t *Sertype) bool {
		if t.refc.load() > 0 {
			types = append(types, t)
		}
		return true
	})
	sort.Slice(types, func(i, j int) bool {
		if types[i].desc.Name != types[j].desc.Name {
			return types[i].desc.Name < types[j].desc.Name
		}
		return types[i].desc.Version < types[j].desc.Version
	})
	return types
}

// Len returns the number of types in the arena
func (r *Registry) Len() int {
	return r.byID.Size()
}

// LiveSerdata returns the number of Serdata created and not yet freed
func (r *Registry) LiveSerdata() uint64 {
	return r.metrics.liveSerdata()
}

// WritePrometheus writes the registry metrics in Prometheus text format
func (r *Registry) WritePrometheus(w io.Writer) {
	r.metrics.set.WritePrometheus(w)
}
