// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import "github.com/google/uuid"

// Entry is the payload of an event: an identifier, an optional message, a
// unique per-intermediary entry id, and the origin where it was set.
//
// Two entries are equal iff their identifier (ID) and entry id (EntryID)
// are both equal; EntryID alone is what a hash-based collection should key
// on, since it is generated fresh for every intermediary.
type Entry[K comparable, M any] struct {
	ID      K
	Msg     *M
	EntryID uuid.UUID
	Origin  Origin
}

// NewEntry builds an entry with a freshly generated entry id.
func NewEntry[K comparable, M any](id K, msg *M, origin Origin) Entry[K, M] {
	return Entry[K, M]{
		ID:      id,
		Msg:     msg,
		EntryID: uuid.New(),
		Origin:  origin,
	}
}

// Equal reports whether two entries share both their event id and entry id.
func (e Entry[K, M]) Equal(other Entry[K, M]) bool {
	return e.ID == other.ID && e.EntryID == other.EntryID
}
