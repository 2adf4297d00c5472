package deliver

import (
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
	"sync/atomic"
)

var plog = logger.GetLogger("deliver")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// ReaderOptions configures a Reader during initialization
type ReaderOptions struct {
	Name string // Name used in log messages ("" = the reader GUID)
	// Listener is called on the reader goroutine for every received sample
	// (data, dispose and unregister) before it is indexed. The reader holds a
	// reference for the duration of the call, the listener must AddRef to keep it.
	Listener func(d *ddsi.Serdata)
}

// DefaultReaderOptions returns the default reader options
func DefaultReaderOptions() *ReaderOptions {
	return &ReaderOptions{
		Name:     "",
		Listener: nil,
	}
}

// --------------------------------------------------------------------------
// Reader
// --------------------------------------------------------------------------

// Reader receives Serdata through its queue and keeps the latest sample of
// every instance (keep-last-1 history), indexed by key hash. A sample that is
// replaced by a newer one of the same instance is released. Dispose and
// unregister samples remove the instance.
//
// Every sample stored in the reader holds exactly one reference owned by the
// reader. Read hands out additional references, Take transfers the reader's.
type Reader struct {
	guid     uuid.UUID
	name     string
	listener func(d *ddsi.Serdata)

	queue     *Queue
	instances *xsync.MapOf[ddsi.KeyHash, *ddsi.Serdata]
	done      chan struct{}

	closeOnce sync.Once
	received  atomic.Uint64
}

// NewReader creates a reader and starts its delivery goroutine
func NewReader(opts *ReaderOptions) *Reader {
	if opts == nil {
		opts = DefaultReaderOptions()
	}

	r := &Reader{
		guid:      uuid.New(),
		name:      opts.Name,
		listener:  opts.Listener,
		queue:     NewQueue(),
		instances: xsync.NewMapOf[ddsi.KeyHash, *ddsi.Serdata](),
		done:      make(chan struct{}),
	}
	if r.name == "" {
		r.name = r.guid.String()
	}

	go r.run()
	return r
}

// GUID returns the unique id of the reader
func (r *Reader) GUID() uuid.UUID {
	return r.guid
}

// Name returns the reader name
func (r *Reader) Name() string {
	return r.name
}

// deliver transfers one reference of d to the reader.
// Returns false if the reader is closed, the caller then still owns the reference.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reader) deliver(d *ddsi.Serdata) bool {
	return r.queue.Push(d)
}

// run indexes received samples until the queue is closed and drained
func (r *Reader) run() {
	defer close(r.done)
	for d := range r.queue.Recv() {
		if r.listener != nil {
			r.listener(d)
		}
		r.store(d)
		r.received.Add(1)
	}
}

// store takes over the reference of d
func (r *Reader) store(d *ddsi.Serdata) {
	key := d.Key().Hash()

	if status := d.StatusInfo(); status.Disposed() || status.Unregistered() {
		if old, ok := r.instances.LoadAndDelete(key); ok {
			old.RemoveRef()
		}
		plog.Debugf("reader %s: instance %s removed (%s)", r.name, key, status)
		d.RemoveRef()
		return
	}

	if d.Kind() == ddsi.KindKey {
		// key only samples carry no data to keep
		d.RemoveRef()
		return
	}

	var old *ddsi.Serdata
	r.instances.Compute(key, func(prev *ddsi.Serdata, loaded bool) (*ddsi.Serdata, bool) {
		if loaded {
			old = prev
		}
		return d, false
	})
	if old != nil {
		old.RemoveRef()
	}
}

// Read returns the latest sample of an instance with an additional
// reference. The caller must RemoveRef it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reader) Read(key ddsi.KeyHash) (*ddsi.Serdata, bool) {
	var result *ddsi.Serdata
	// the reference is taken under the bucket lock, so the sample cannot be
	// released by a concurrent replacement in between
	r.instances.Compute(key, func(d *ddsi.Serdata, loaded bool) (*ddsi.Serdata, bool) {
		if !loaded {
			return d, true
		}
		result = d.AddRef()
		return d, false
	})
	return result, result != nil
}

// Take removes the latest sample of an instance and transfers its reference
// to the caller, who must RemoveRef it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reader) Take(key ddsi.KeyHash) (*ddsi.Serdata, bool) {
	return r.instances.LoadAndDelete(key)
}

// Instances returns the key hashes of all instances currently held
func (r *Reader) Instances() []ddsi.KeyHash {
	keys := make([]ddsi.KeyHash, 0, r.instances.Size())
	r.instances.Range(func(key ddsi.KeyHash, _ *ddsi.Serdata) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Len returns the number of instances currently held
func (r *Reader) Len() int {
	return r.instances.Size()
}

// Received returns the number of samples received and indexed so far
func (r *Reader) Received() uint64 {
	return r.received.Load()
}

// Close stops the reader: queued samples are still processed, afterwards
// every stored sample is released. Close is idempotent.
func (r *Reader) Close() {
	r.closeOnce.Do(func() {
		r.queue.Close()
		<-r.done

		r.instances.Range(func(key ddsi.KeyHash, _ *ddsi.Serdata) bool {
			if d, ok := r.instances.LoadAndDelete(key); ok {
				d.RemoveRef()
			}
			return true
		})
		plog.Debugf("reader %s closed after %d samples", r.name, r.received.Load())
	})
}

// KeyOf returns the key hash of the instance sample belongs to, as used by
// Read and Take.
func KeyOf(t *ddsi.Sertype, sample any) (ddsi.KeyHash, error) {
	d, err := ddsi.FromSample(t, ddsi.KindKey, sample)
	if err != nil {
		return ddsi.KeyHash{}, err
	}
	defer d.RemoveRef()
	return d.Key().Hash(), nil
}
