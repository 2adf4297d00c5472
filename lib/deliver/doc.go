// Package deliver provides in-process delivery of Serdata from writers to readers.
//
// Key Components:
//
//   - Queue: a lock-free multi-producer single-consumer queue of Serdata. Pushing
//     transfers a reference to the queue, receiving transfers it to the consumer.
//
//   - Writer: serializes samples of one Sertype and fans them out to every
//     attached Reader, taking one reference per reader.
//
//   - Reader: consumes its queue on its own goroutine and keeps the latest
//     sample of every instance (indexed by key hash). Replaced samples are
//     released, Read hands out additional references and Take transfers them.
//
// Ownership:
//
//	Every reference is owned by exactly one holder. After all readers are
//	closed and all references handed out by Read and Take are released, every
//	Serdata written through a Writer has been freed.
//
// Usage:
//
//	w := deliver.NewWriter(st)
//	defer w.Close()
//	r := deliver.NewReader(nil)
//	defer r.Close()
//	w.Attach(r)
//	err := w.Write(sample)
package deliver
