// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublisher_NonBlockingMode_CountsMissedCaptures(t *testing.T) {
	pub := New[int, string](
		WithCaptureMode[int, string](NonBlocking),
		WithCaptureChannelBound[int, string](1),
	)
	defer pub.Close(context.Background())

	// No subscriber drains the capture channel via the dispatcher fast
	// enough once it's saturated, so repeated non-blocking emits beyond
	// the bound must be counted as missed.
	msg := "x"
	for i := 0; i < 50; i++ {
		Emit(pub, 1, &msg, ThisOrigin(), "")
	}

	require.Eventually(t, func() bool {
		return pub.GetMissedCaptures() > 0
	}, time.Second, time.Millisecond)
}

func TestPublisher_ResetMissedCaptures(t *testing.T) {
	pub := New[int, string](
		WithCaptureMode[int, string](NonBlocking),
		WithCaptureChannelBound[int, string](1),
	)
	defer pub.Close(context.Background())

	msg := "x"
	for i := 0; i < 50; i++ {
		Emit(pub, 1, &msg, ThisOrigin(), "")
	}

	require.Eventually(t, func() bool {
		return pub.GetMissedCaptures() > 0
	}, time.Second, time.Millisecond)

	pub.ResetMissedCaptures()
	require.Equal(t, uint64(0), pub.GetMissedCaptures())
}

func TestPublisher_SetFilter_RuntimeSwap(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.Subscribe(1)
	require.NoError(t, err)
	defer sub.Close()

	pub.SetFilter(FilterFunc[int, string](func(Entry[int, string]) bool { return false }))

	msg := "blocked"
	Emit(pub, 1, &msg, ThisOrigin(), "")

	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected delivery past rejecting filter: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}

	pub.SetFilter(Permissive[int, string]{})
	Emit(pub, 1, &msg, ThisOrigin(), "")

	select {
	case event := <-sub.Events():
		require.Equal(t, 1, event.Entry.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery after restoring permissive filter")
	}
}

func TestPublisher_Close_IsIdempotentAndWaitsForDispatcher(t *testing.T) {
	pub := New[int, string]()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, pub.Close(ctx))
	require.NoError(t, pub.Close(ctx))
}

func TestPublisher_Close_ContextDeadline(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	sub, err := pub.SubscribeToAllEvents()
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()

	// The dispatcher may or may not have exited by the time the deadline
	// fires; either outcome is acceptable, this only exercises that Close
	// never hangs past the deadline.
	done := make(chan error, 1)
	go func() { done <- pub.Close(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not honor context deadline")
	}
}

func TestPublisher_SubscribeAfterClose(t *testing.T) {
	pub := New[int, string]()
	require.NoError(t, pub.Close(context.Background()))

	_, err := pub.Subscribe(1)
	require.ErrorIs(t, err, ErrCouldNotAccessPublisher)
}

func TestPublisher_StartStop_NoControlIDs_IsNoop(t *testing.T) {
	pub := New[int, string]()
	defer pub.Close(context.Background())

	require.True(t, pub.IsCapturing())
	pub.Stop()
	require.True(t, pub.IsCapturing(), "Stop without WithControlIDs must be a no-op")
	pub.Start()
	require.True(t, pub.IsCapturing())
}
