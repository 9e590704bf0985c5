// Package output provides Buffer, an append-only, multi-consumer byte-chunk
// log for one stream (stdout or stderr) of one Job. The history lives in
// memory and waiters are woken through a monotonic.Counter rather than a
// bounded broadcast channel, so that every subscriber can replay the full
// stream from byte zero regardless of when it attaches.
package output

import (
	"context"
	"os"
	"sync"

	"github.com/tjper/jobworker/internal/log"
	"github.com/tjper/jobworker/internal/monotonic"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "output")

// Stream identifies which of a Job's two output streams a Chunk belongs to.
type Stream int

const (
	// Stdout identifies the standard output stream.
	Stdout Stream = iota
	// Stderr identifies the standard error stream.
	Stderr
)

// Chunk is an ordered, non-empty run of bytes read from a Job's pipe.
// Chunk boundaries are an artifact of read sizing and carry no semantic
// meaning; only the concatenation of a stream's chunks, in order, matters.
type Chunk struct {
	Bytes []byte
}

// New creates an empty Buffer ready to accept appends.
func New() *Buffer {
	return &Buffer{
		revision: monotonic.NewCounter(),
	}
}

// Buffer is the append-only history of one (job, stream) pair. It is
// written by exactly one pipe-drain goroutine and read by any number of
// fan-out readers; all reads are non-destructive snapshots of the history.
type Buffer struct {
	mutex     sync.RWMutex
	history   []Chunk
	completed bool
	revision  *monotonic.Counter
}

// Append adds chunk to the history and wakes every waiter. Append must never
// be called after Complete: doing so is a programmer error, since the
// writer (the pipe-drain goroutine) is the only appender and is expected to
// call Complete exactly once, after its last Append.
func (b *Buffer) Append(chunk Chunk) {
	b.mutex.Lock()
	if b.completed {
		b.mutex.Unlock()
		panic("output: Append called after Complete")
	}
	b.history = append(b.history, chunk)
	b.mutex.Unlock()

	b.revision.Advance()
}

// Complete marks the buffer as having no further appends. It must be called
// exactly once, after the writer's final Append.
func (b *Buffer) Complete() {
	b.mutex.Lock()
	b.completed = true
	b.mutex.Unlock()

	b.revision.Advance()
}

// snapshot is a non-blocking read of history at positions >= index, along
// with the revision observed at the time of the read and whether the
// buffer is completed.
type snapshot struct {
	chunks    []Chunk
	revision  uint64
	completed bool
}

// snapshotFrom returns the chunks at positions >= index without blocking.
func (b *Buffer) snapshotFrom(index int) snapshot {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var chunks []Chunk
	if index < len(b.history) {
		chunks = append(chunks, b.history[index:]...)
	}
	return snapshot{
		chunks:    chunks,
		revision:  b.revision.Value(),
		completed: b.completed,
	}
}

// Drain walks the buffer's full history and then any subsequent live
// appends, invoking deliver for each chunk in order, until either the
// buffer completes and its history is fully drained, or deliver returns
// false (the downstream sink refused the chunk — e.g. the subscriber
// disconnected), or ctx is canceled.
//
// It samples the revision before taking a snapshot, delivers whatever
// chunks exist, and only waits on the sampled revision when the snapshot
// yielded nothing — avoiding the lost-wakeup race where an Append could
// land between a reader's snapshot and its wait.
func (b *Buffer) Drain(ctx context.Context, deliver func(Chunk) bool) error {
	index := 0
	for {
		lastRevision := b.revision.Value()
		snap := b.snapshotFrom(index)

		if len(snap.chunks) > 0 {
			for _, chunk := range snap.chunks {
				if !deliver(chunk) {
					logger.Infof("subscriber disconnected mid-drain")
					return nil
				}
				index++
			}
			continue
		}

		if snap.completed {
			return nil
		}

		if err := b.revision.WaitUntilAfter(ctx, lastRevision); err != nil {
			return err
		}
	}
}
