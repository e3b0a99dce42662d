// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import (
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
)

// Intermediary is a scope-bound producer handle: it holds an entry that has
// been set but not yet captured. Capture happens exactly once, either when
// the caller explicitly calls Release (the normal path, driven by defer) or,
// if the caller never does, when the garbage collector notices the
// Intermediary is unreachable and runs its finalizer. The finalizer exists
// only as a backstop against forgotten Release calls; relying on it for
// anything timing-sensitive is a bug in the caller, since GC-driven
// finalization is unordered and may never run promptly.
type Intermediary[K comparable, M any] struct {
	entry       Entry[K, M]
	publisher   *Publisher[K, M]
	goroutineID uint64
	threadName  string
	released    atomic.Bool
}

// New sets an entry's data and returns a live Intermediary. The caller must
// arrange for Release to run at scope end:
//
//	im := evident.New(pub, id, &msg, evident.ThisOrigin(), "")
//	defer im.Release()
func New[K comparable, M any](pub *Publisher[K, M], id K, msg *M, origin Origin, threadName string) *Intermediary[K, M] {
	im := &Intermediary[K, M]{
		entry:       NewEntry(id, msg, origin),
		publisher:   pub,
		goroutineID: currentGoroutineID(),
		threadName:  threadName,
	}
	runtime.SetFinalizer(im, finalizeIntermediary[K, M])

	return im
}

// Emit is New followed immediately by Release: a convenience for producers
// that have no intervening scope to hold the entry open across, which is
// the common case.
func Emit[K comparable, M any](pub *Publisher[K, M], id K, msg *M, origin Origin, threadName string) {
	New(pub, id, msg, origin, threadName).Release()
}

// Release captures the intermediary's entry, if it has not already been
// released. Safe to call more than once; only the first call has any
// effect.
func (im *Intermediary[K, M]) Release() {
	if !im.released.CompareAndSwap(false, true) {
		return
	}

	runtime.SetFinalizer(im, nil)
	im.publisher.capture(im.entry, im.goroutineID, im.threadName)
}

// Entry returns the entry this intermediary holds, for inspection before
// release.
func (im *Intermediary[K, M]) Entry() Entry[K, M] {
	return im.entry
}

// Finalize is the explicit form of scope-end capture: it reads the
// identifier and entry id out of the contained entry, performs the same
// release Release would, and returns both. Safe to call more than once;
// only the first call actually captures.
func (im *Intermediary[K, M]) Finalize() (eventID K, entryID uuid.UUID) {
	eventID, entryID = im.entry.ID, im.entry.EntryID
	im.Release()

	return eventID, entryID
}

func finalizeIntermediary[K comparable, M any](im *Intermediary[K, M]) {
	im.Release()
}
