package deliver

import (
	"github.com/ValentinKolb/serdata/lib/ddsi"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
	"time"
)

// Writer publishes samples of one Sertype to every attached Reader.
//
// Each delivered Serdata is shared: the writer takes one reference per
// attached reader and drops its own afterwards, so the sample is freed once
// the last reader released it.
type Writer struct {
	guid    uuid.UUID
	sertype *ddsi.Sertype
	readers *xsync.MapOf[uuid.UUID, *Reader]
	closed  atomic.Bool
	written atomic.Uint64
}

// NewWriter creates a writer for t. The writer takes its own reference on t,
// which is released by Close.
func NewWriter(t *ddsi.Sertype) *Writer {
	return &Writer{
		guid:    uuid.New(),
		sertype: t.AddRef(),
		readers: xsync.NewMapOf[uuid.UUID, *Reader](),
	}
}

// GUID returns the unique id of the writer
func (w *Writer) GUID() uuid.UUID {
	return w.guid
}

// Sertype returns the type of the samples written by w
func (w *Writer) Sertype() *ddsi.Sertype {
	return w.sertype
}

// Written returns the number of Serdata published so far
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// Attach starts delivering samples to r
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (w *Writer) Attach(r *Reader) {
	w.readers.Store(r.GUID(), r)
	plog.Debugf("writer %s: attached reader %s", w.guid, r.Name())
}

// Detach stops delivering samples to r
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (w *Writer) Detach(r *Reader) {
	w.readers.Delete(r.GUID())
}

// Readers returns the number of attached readers
func (w *Writer) Readers() int {
	return w.readers.Size()
}

// Write serializes sample and publishes it. The source timestamp defaults to
// the current time and can be overridden with ddsi.WithTimestamp.
func (w *Writer) Write(sample any, opts ...ddsi.Option) error {
	return w.publish(ddsi.KindData, sample, 0, opts)
}

// Dispose publishes a dispose notification for the instance of sample
func (w *Writer) Dispose(sample any, opts ...ddsi.Option) error {
	return w.publish(ddsi.KindKey, sample, ddsi.StatusDispose, opts)
}

// Unregister publishes an unregister notification for the instance of sample
func (w *Writer) Unregister(sample any, opts ...ddsi.Option) error {
	return w.publish(ddsi.KindKey, sample, ddsi.StatusUnregister, opts)
}

// publish serializes a sample of the given kind and hands it to WriteSerdata
func (w *Writer) publish(kind ddsi.Kind, sample any, status ddsi.StatusInfo, opts []ddsi.Option) error {
	if w.closed.Load() {
		return ddsi.NewError(ddsi.RetCAlreadyDeleted, "writer is closed")
	}

	all := make([]ddsi.Option, 0, len(opts)+2)
	all = append(all, ddsi.WithTimestamp(time.Now()))
	if status != 0 {
		all = append(all, ddsi.WithStatusInfo(status))
	}
	all = append(all, opts...)

	d, err := ddsi.FromSample(w.sertype, kind, sample, all...)
	if err != nil {
		return err
	}
	return w.WriteSerdata(d)
}

// WriteSerdata publishes an existing Serdata, e.g. one received from a
// transport. The writer consumes the caller's reference in every case.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (w *Writer) WriteSerdata(d *ddsi.Serdata) error {
	defer d.RemoveRef()

	if w.closed.Load() {
		return ddsi.NewError(ddsi.RetCAlreadyDeleted, "writer is closed")
	}
	// type ids are only unique within one registry
	if st := d.Sertype(); st != w.sertype {
		return ddsi.NewError(ddsi.RetCTypeMismatch, "serdata of type "+st.String()+" written to "+w.sertype.String())
	}

	w.readers.Range(func(_ uuid.UUID, r *Reader) bool {
		if !r.deliver(d.AddRef()) {
			// reader closed concurrently
			d.RemoveRef()
		}
		return true
	})
	w.written.Add(1)
	return nil
}

// Close detaches all readers and releases the writer's type reference.
// Close is idempotent.
func (w *Writer) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.readers.Clear()
	w.sertype.Release()
}
