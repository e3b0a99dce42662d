// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// subSender is the registry's internal view of one subscription: the
// channel to deliver on, a cancel signal closed exactly once at
// unsubscribe, and a saturating count of events dropped because the
// subscriber's channel was full.
type subSender[K comparable, M any] struct {
	uuid    uuid.UUID
	ch      chan *Event[K, M]
	cancel  chan struct{}
	dropped atomic.Uint64
}

// deliver sends event on s.ch, blocking until accepted if blocking is
// true and otherwise giving up immediately when the channel is full. It
// tolerates the benign race where the subscriber closed the channel
// concurrently (select may still pick the send case after Close) by
// recovering the resulting panic. disconnected reports
// whether s is permanently gone (cancelled or closed), as opposed to
// merely full for this one send; the caller uses it to reap the
// subscription's stale back-references out of the registry.
func (s *subSender[K, M]) deliver(event *Event[K, M], blocking bool) (delivered, disconnected bool) {
	defer func() {
		if recover() != nil {
			delivered = false
			disconnected = true
		}
	}()

	if blocking {
		select {
		case s.ch <- event:
			return true, false
		case <-s.cancel:
			return false, true
		}
	}

	select {
	case s.ch <- event:
		return true, false
	case <-s.cancel:
		return false, true
	default:
		saturatingIncrement(&s.dropped)
		return false, false
	}
}

// registry tracks live subscriptions, keyed both by the identifiers they
// listen for and, separately, the set that listens to everything. A
// read-lock snapshot is taken before fan-out so delivery never blocks
// concurrent (un)subscribe calls; the write lock is only held for the
// map mutation itself.
type registry[K comparable, M any] struct {
	mu        sync.RWMutex
	byID      map[K]map[uuid.UUID]*subSender[K, M]
	allEvents map[uuid.UUID]*subSender[K, M]
}

func newRegistry[K comparable, M any]() *registry[K, M] {
	return &registry[K, M]{
		byID:      make(map[K]map[uuid.UUID]*subSender[K, M]),
		allEvents: make(map[uuid.UUID]*subSender[K, M]),
	}
}

func newSubSender[K comparable, M any](channelSize int) *subSender[K, M] {
	return &subSender[K, M]{
		uuid:   uuid.New(),
		ch:     make(chan *Event[K, M], channelSize),
		cancel: make(chan struct{}),
	}
}

func (r *registry[K, M]) addID(sender *subSender[K, M], id K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byID[id]
	if !ok {
		set = make(map[uuid.UUID]*subSender[K, M])
		r.byID[id] = set
	}

	set[sender.uuid] = sender
}

// removeID tries, without blocking, to drop sender's registration under
// id. It reports whether the write lock was actually acquired; on
// contention the back-reference is left in place for the dispatcher to
// reap later once a send to it is observed disconnected.
func (r *registry[K, M]) removeID(sender *subSender[K, M], id K) bool {
	if !r.mu.TryLock() {
		return false
	}
	defer r.mu.Unlock()

	set, ok := r.byID[id]
	if !ok {
		return true
	}

	delete(set, sender.uuid)
	if len(set) == 0 {
		delete(r.byID, id)
	}

	return true
}

func (r *registry[K, M]) addAllEvents(sender *subSender[K, M]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.allEvents[sender.uuid] = sender
}

// removeEverywhere tries, without blocking, to drop id from both the
// id-keyed and all-events registries in one pass. Used on subscription
// drop, where the dropping thread must never block on lock contention
// (spec §3/§9): on contention it is simply skipped, leaving the
// back-reference stale until the dispatcher reaps it via reap below.
func (r *registry[K, M]) removeEverywhere(id uuid.UUID) bool {
	if !r.mu.TryLock() {
		return false
	}
	defer r.mu.Unlock()

	r.removeLocked(id)

	return true
}

// reap drops every id in ids from both registries in a single exclusive
// lock acquisition. Unlike removeEverywhere, this runs on the dispatcher
// goroutine after fan-out has already observed these channels as
// permanently disconnected, so blocking briefly for the write lock here
// is fine: it never delays a producer or a dropping subscription.
func (r *registry[K, M]) reap(ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		r.removeLocked(id)
	}
}

// removeLocked deletes id from both registries. Callers must hold r.mu
// for writing.
func (r *registry[K, M]) removeLocked(id uuid.UUID) {
	delete(r.allEvents, id)

	for k, set := range r.byID {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byID, k)
			}
		}
	}
}

// snapshot returns the senders that should receive an event for id: the
// id-keyed subscribers plus every all-events subscriber. Taken under a
// read lock and delivered to afterwards, lock-free.
func (r *registry[K, M]) snapshot(id K) []*subSender[K, M] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := r.byID[id]
	out := make([]*subSender[K, M], 0, len(byID)+len(r.allEvents))

	for _, s := range byID {
		out = append(out, s)
	}

	for _, s := range r.allEvents {
		out = append(out, s)
	}

	return out
}

// snapshotAll returns every distinct live sender across both the
// id-keyed and all-events registries, deduplicated by channel id. Used
// only to broadcast capture-control transitions, which every listener
// must observe regardless of which identifiers it follows.
func (r *registry[K, M]) snapshotAll() []*subSender[K, M] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uuid.UUID]*subSender[K, M])

	for _, s := range r.allEvents {
		seen[s.uuid] = s
	}

	for _, set := range r.byID {
		for _, s := range set {
			seen[s.uuid] = s
		}
	}

	out := make([]*subSender[K, M], 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}

	return out
}

func (r *registry[K, M]) subscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	for _, s := range r.allEvents {
		seen[s.uuid] = struct{}{}
	}

	for _, set := range r.byID {
		for _, s := range set {
			seen[s.uuid] = struct{}{}
		}
	}

	return len(seen)
}

// Subscription is a live, independently closable listener returned by a
// Publisher's Subscribe methods. The same underlying channel backs every
// id it listens for; subscribing to additional ids (or an all-events
// subscription) just registers the existing channel under more keys.
type Subscription[K comparable, M any] struct {
	registry  *registry[K, M]
	sender    *subSender[K, M]
	allEvents bool

	mu     sync.Mutex
	ids    map[K]struct{}
	closed bool
}

func newSubscription[K comparable, M any](reg *registry[K, M], allEvents bool, channelBound int, ids ...K) *Subscription[K, M] {
	sender := newSubSender[K, M](channelBound)
	sub := &Subscription[K, M]{
		registry:  reg,
		sender:    sender,
		allEvents: allEvents,
		ids:       make(map[K]struct{}, len(ids)),
	}

	if allEvents {
		reg.addAllEvents(sender)
	}

	for _, id := range ids {
		reg.addID(sender, id)
		sub.ids[id] = struct{}{}
	}

	return sub
}

// Events returns the channel Events for this subscription are delivered
// on. It is closed once Close completes.
func (s *Subscription[K, M]) Events() <-chan *Event[K, M] {
	return s.sender.ch
}

// Dropped returns the number of events this subscription's channel could
// not accept because it was full, saturating at the uint64 max.
func (s *Subscription[K, M]) Dropped() uint64 {
	return s.sender.dropped.Load()
}

// IsAllEvents reports whether this subscription listens to every
// identifier rather than a specific set.
func (s *Subscription[K, M]) IsAllEvents() bool {
	return s.allEvents
}

// SubscribeID adds id to the set this subscription listens for. It is an
// error to call this on an all-events subscription, and an error to add
// an id the subscription is already registered under.
func (s *Subscription[K, M]) SubscribeID(id K) error {
	if s.allEvents {
		return ErrAllEventsSubscriptionNotModifiable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNoSubscriptionChannelAvailable
	}

	if _, ok := s.ids[id]; ok {
		return &IDAlreadySubscribedError[K]{ID: id}
	}

	s.registry.addID(s.sender, id)
	s.ids[id] = struct{}{}

	return nil
}

// SubscribeMany calls SubscribeID for each id, stopping at the first
// error.
func (s *Subscription[K, M]) SubscribeMany(ids ...K) error {
	for _, id := range ids {
		if err := s.SubscribeID(id); err != nil {
			return err
		}
	}

	return nil
}

// UnsubscribeID removes id from the set this subscription listens for.
// Removing the last remaining id is rejected with
// ErrUnsubscribeWouldDeleteSubscription; call Close instead to tear down
// the whole subscription. ErrCouldNotAccessPublisher is returned if the
// registry's write lock could not be acquired without blocking; the
// subscription keeps listening for id in that case.
func (s *Subscription[K, M]) UnsubscribeID(id K) error {
	if s.allEvents {
		return ErrAllEventsSubscriptionNotModifiable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; !ok {
		return &IDNotSubscribedError[K]{ID: id}
	}

	if len(s.ids) == 1 {
		return ErrUnsubscribeWouldDeleteSubscription
	}

	if !s.registry.removeID(s.sender, id) {
		return ErrCouldNotAccessPublisher
	}

	delete(s.ids, id)

	return nil
}

// UnsubscribeMany calls UnsubscribeID for each id, stopping at the first
// error.
func (s *Subscription[K, M]) UnsubscribeMany(ids ...K) error {
	for _, id := range ids {
		if err := s.UnsubscribeID(id); err != nil {
			return err
		}
	}

	return nil
}

// Close tries, without blocking, to remove this subscription from every
// id it is registered under, then closes its event channel. Safe to call
// more than once. A stale back-reference left behind by lock contention
// is reaped lazily the next time the dispatcher observes a send to this
// subscription's channel fail as disconnected.
func (s *Subscription[K, M]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	s.mu.Unlock()

	s.registry.removeEverywhere(s.sender.uuid)
	close(s.sender.cancel)
	close(s.sender.ch)

	return nil
}
