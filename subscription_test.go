// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscription_SubscribeID(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.Subscribe(1)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, sub.SubscribeID(2))
	require.ErrorAs(t, sub.SubscribeID(2), new(*IDAlreadySubscribedError[int]))

	msg := "two"
	Emit(pub, 2, &msg, ThisOrigin(), "")

	select {
	case event := <-sub.Events():
		require.Equal(t, 2, event.Entry.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event on newly subscribed id")
	}
}

func TestSubscription_SubscribeID_AllEventsRejected(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.SubscribeToAllEvents()
	require.NoError(t, err)
	defer sub.Close()

	require.ErrorIs(t, sub.SubscribeID(1), ErrAllEventsSubscriptionNotModifiable)
	require.ErrorIs(t, sub.UnsubscribeID(1), ErrAllEventsSubscriptionNotModifiable)
}

func TestSubscription_UnsubscribeID(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.SubscribeToMany(1, 2)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, sub.UnsubscribeID(1))
	require.ErrorAs(t, sub.UnsubscribeID(1), new(*IDNotSubscribedError[int]))
	require.ErrorIs(t, sub.UnsubscribeID(2), ErrUnsubscribeWouldDeleteSubscription)
}

func TestSubscription_Close_ClosesChannel(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.Subscribe(5)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "Close should be idempotent")

	_, open := <-sub.Events()
	require.False(t, open, "subscription channel should be closed")
}

func TestSubscription_SubscribeID_AfterClose(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.Subscribe(1)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	require.ErrorIs(t, sub.SubscribeID(2), ErrNoSubscriptionChannelAvailable)
}

func TestSubscription_UnsubscribeID_LockContention(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.SubscribeToMany(1, 2)
	require.NoError(t, err)
	defer sub.Close()

	// Hold the registry write lock to force removeID's TryLock to fail,
	// simulating contention with a concurrent (un)subscribe elsewhere.
	pub.registry.mu.Lock()
	err = sub.UnsubscribeID(1)
	pub.registry.mu.Unlock()

	require.ErrorIs(t, err, ErrCouldNotAccessPublisher)
}

func TestSubscription_Close_LazyReapOnContention(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.Subscribe(1)
	require.NoError(t, err)
	require.Equal(t, 1, pub.SubscriberCount())

	// Hold the registry write lock so Close's non-blocking
	// removeEverywhere cannot acquire it and must leave the
	// back-reference in place.
	pub.registry.mu.Lock()
	require.NoError(t, sub.Close())
	pub.registry.mu.Unlock()

	require.Equal(t, 1, pub.SubscriberCount(), "stale back-reference should still be registered")

	// The next fan-out to this now-closed channel must observe the
	// disconnect and reap the stale entry, without the dropping thread
	// (above) ever having blocked.
	msg := "x"
	Emit(pub, 1, &msg, ThisOrigin(), "")

	require.Eventually(t, func() bool {
		return pub.SubscriberCount() == 0
	}, time.Second, time.Millisecond, "dispatcher should reap the disconnected subscription")
}

func TestSubscription_SharedID_BothReceive(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	subA, err := pub.Subscribe(1)
	require.NoError(t, err)
	defer subA.Close()

	subB, err := pub.Subscribe(1)
	require.NoError(t, err)
	defer subB.Close()

	msg := "x"
	Emit(pub, 1, &msg, ThisOrigin(), "")

	for _, sub := range []*Subscription[int, string]{subA, subB} {
		select {
		case event := <-sub.Events():
			require.Equal(t, 1, event.Entry.ID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for shared-id delivery")
		}
	}

	select {
	case event, open := <-subA.Events():
		if open {
			t.Fatalf("unexpected second event on subA: %+v", event)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
