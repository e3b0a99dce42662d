// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import (
	"time"

	"github.com/mhatzl/evident/internal/goroutineid"
)

// TimestampKind selects when an Event's Timestamp field is stamped.
type TimestampKind int

const (
	// TimestampOnCreated stamps the time the capture entry point builds
	// the event on the producer's goroutine (when the intermediary is
	// released), before it ever reaches the capture channel.
	TimestampOnCreated TimestampKind = iota
	// TimestampOnCaptured stamps the time the dispatcher actually
	// captured the entry, which may lag creation under a non-blocking
	// capture mode or a busy dispatcher.
	TimestampOnCaptured
)

// Event is the value delivered to subscribers: a captured Entry plus the
// bookkeeping the publisher attaches on the way through the capture
// channel. Every subscriber sharing the same Entry receives a pointer to
// the same Event, so subscriber code must treat it as read-only.
type Event[K comparable, M any] struct {
	Entry Entry[K, M]

	// GoroutineID is a best-effort identifier of the goroutine that
	// created the originating intermediary. It is not a stable identity
	// across a goroutine's lifetime, only a diagnostic aid.
	GoroutineID uint64
	// ThreadName is empty unless the caller supplied one explicitly;
	// Go goroutines have no native name.
	ThreadName string

	Timestamp     time.Time
	TimestampKind TimestampKind
}

// newEvent builds the dispatched value for entry at the capture entry
// point. When kind is TimestampOnCreated the timestamp is stamped now,
// on the producer's goroutine; when it is TimestampOnCaptured, Timestamp
// is left zero and the dispatcher stamps it once the event is actually
// drained from the capture channel.
func newEvent[K comparable, M any](entry Entry[K, M], goroutineID uint64, threadName string, kind TimestampKind) *Event[K, M] {
	var ts time.Time
	if kind == TimestampOnCreated {
		ts = time.Now()
	}

	return &Event[K, M]{
		Entry:         entry,
		GoroutineID:   goroutineID,
		ThreadName:    threadName,
		Timestamp:     ts,
		TimestampKind: kind,
	}
}

// currentGoroutineID is a thin indirection so intermediary.go doesn't
// import internal/goroutineid directly.
func currentGoroutineID() uint64 {
	return goroutineid.Current()
}
