// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mhatzl/evident/internal/logging"
)

// Publisher is the capture pipeline and dispatcher for one event bus
// instance: producers call Emit/New against it, subscribers register
// through its Subscribe methods, and one dedicated dispatcher goroutine
// owns the only consumer end of its capture channel.
type Publisher[K comparable, M any] struct {
	registry *registry[K, M]

	captureCh chan *Event[K, M]

	filter  atomic.Pointer[Filter[K, M]]
	control ControlIDs[K]

	capturing atomic.Bool
	mode      atomic.Int32

	subscriptionChannelBound int
	captureChannelBound      int
	timestampKind            TimestampKind
	onEvent                  func(*Event[K, M])

	metrics Metrics

	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}

	logger *slog.Logger
}

// New constructs a Publisher, allocates its bounded capture channel, and
// launches its dispatcher goroutine. The capturing flag starts active
// and the missed-capture counter starts at zero.
func New[K comparable, M any](opts ...Option[K, M]) *Publisher[K, M] {
	cfg := defaultConfig[K, M]()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Publisher[K, M]{
		registry:                 newRegistry[K, M](),
		captureCh:                make(chan *Event[K, M], cfg.captureChannelBound),
		control:                  cfg.control,
		subscriptionChannelBound: cfg.subscriptionChannelBound,
		captureChannelBound:      cfg.captureChannelBound,
		timestampKind:            cfg.timestampKind,
		onEvent:                  cfg.onEvent,
		done:                     make(chan struct{}),
		logger:                   logging.Logger("evident"),
	}

	p.capturing.Store(true)
	p.mode.Store(int32(cfg.mode))
	filter := cfg.filter
	p.filter.Store(&filter)

	go p.run()

	return p
}

// capture is the capture entry point invoked by an Intermediary at scope
// end.
func (p *Publisher[K, M]) capture(entry Entry[K, M], goroutineID uint64, threadName string) {
	control := isControlID(p.control, entry.ID)

	if !control {
		if !p.capturing.Load() {
			return
		}

		if f := p.filter.Load(); f != nil && !(*f).Allow(entry) {
			return
		}
	}

	event := newEvent(entry, goroutineID, threadName, p.timestampKind)

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return
	}

	if CaptureMode(p.mode.Load()) == NonBlocking {
		select {
		case p.captureCh <- event:
		default:
			saturatingIncrement(&p.metrics.MissedTotal)
		}

		return
	}

	p.captureCh <- event
}

// run is the dispatcher worker: it owns the only consumer end of the
// capture channel and exits once the channel is closed and drained.
func (p *Publisher[K, M]) run() {
	for event := range p.captureCh {
		if p.timestampKind == TimestampOnCaptured && event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}

		p.dispatch(event)
	}

	close(p.done)
}

// dispatch fans event out to every matching subscriber, handles
// capture-control transitions, and invokes the optional observation
// hook. It runs exclusively on the dispatcher goroutine.
//
// Control events (start/stop) are broadcast to every live subscription
// regardless of which identifiers it follows, not just identifier- or
// all-events-matching ones: every listener must be able to observe a
// capturing-flag transition, even one that otherwise only watches
// unrelated ids.
func (p *Publisher[K, M]) dispatch(event *Event[K, M]) {
	isStop := p.control != nil && p.control.IsStop(event.Entry.ID)
	isStart := p.control != nil && p.control.IsStart(event.Entry.ID)

	if isStart {
		p.capturing.Store(true)
		p.logger.Debug("capturing resumed")
	}

	if isStop || isStart {
		p.deliverTo(event, p.registry.snapshotAll())
	} else {
		p.deliverTo(event, p.registry.snapshot(event.Entry.ID))
	}

	if isStop {
		p.capturing.Store(false)
		p.logger.Debug("capturing paused")
	}

	if p.onEvent != nil {
		p.onEvent(event)
	}
}

// deliverTo sends event to every sender in senders and, afterward, reaps
// any that reported themselves permanently disconnected in one exclusive
// registry pass. This is where stale back-references left behind by a
// non-blocking Subscription.Close (registry.removeEverywhere losing the
// TryLock race) actually get cleaned up.
func (p *Publisher[K, M]) deliverTo(event *Event[K, M], senders []*subSender[K, M]) {
	blocking := CaptureMode(p.mode.Load()) == Blocking

	p.metrics.CapturedTotal.Add(1)

	var delivered uint64
	var dead []uuid.UUID

	for _, s := range senders {
		ok, disconnected := s.deliver(event, blocking)
		if ok {
			delivered++
		}

		if disconnected {
			dead = append(dead, s.uuid)
		}
	}

	p.metrics.DeliveredTotal.Add(delivered)

	p.registry.reap(dead)
}

func saturatingIncrement(counter *atomic.Uint64) {
	for {
		current := counter.Load()
		if current == ^uint64(0) {
			return
		}

		if counter.CompareAndSwap(current, current+1) {
			return
		}
	}
}

// Subscribe registers interest in a single identifier and returns a live
// Subscription. The queue is sized |ids| + subscription_channel_bound,
// i.e. 1 + the configured bound.
func (p *Publisher[K, M]) Subscribe(id K) (*Subscription[K, M], error) {
	return p.SubscribeToMany(id)
}

// SubscribeToMany registers interest in every given identifier under one
// subscription, sized len(ids) + subscription_channel_bound.
// ErrCouldNotAccessPublisher is returned if the publisher has already
// been closed.
func (p *Publisher[K, M]) SubscribeToMany(ids ...K) (*Subscription[K, M], error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return nil, ErrCouldNotAccessPublisher
	}

	bound := len(ids) + p.subscriptionChannelBound

	return newSubscription(p.registry, false, bound, ids...), nil
}

// SubscribeToAllEvents registers a subscription that receives every
// captured event regardless of identifier, sized
// capture_channel_bound. ErrCouldNotAccessPublisher is returned if the
// publisher has already been closed.
func (p *Publisher[K, M]) SubscribeToAllEvents() (*Subscription[K, M], error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return nil, ErrCouldNotAccessPublisher
	}

	return newSubscription[K, M](p.registry, true, p.captureChannelBound), nil
}

// Start submits a synthetic event carrying the reserved start identifier.
// It is a no-op if the publisher was constructed without WithControlIDs.
func (p *Publisher[K, M]) Start() {
	if p.control == nil {
		return
	}

	p.capture(NewEntry[K, M](p.control.StartID(), nil, Origin{}), currentGoroutineID(), "")
}

// Stop submits a synthetic event carrying the reserved stop identifier.
// It is a no-op if the publisher was constructed without WithControlIDs.
func (p *Publisher[K, M]) Stop() {
	if p.control == nil {
		return
	}

	p.capture(NewEntry[K, M](p.control.StopID(), nil, Origin{}), currentGoroutineID(), "")
}

// IsCapturing reports whether the capturing flag is currently active.
func (p *Publisher[K, M]) IsCapturing() bool {
	return p.capturing.Load()
}

// GetCaptureMode returns the current producer-side back-pressure policy.
func (p *Publisher[K, M]) GetCaptureMode() CaptureMode {
	return CaptureMode(p.mode.Load())
}

// SetCaptureMode changes the producer-side back-pressure policy. Capture
// attempts made after the call use the new mode. Events already queued on
// the capture channel stay queued, but the dispatcher reads the mode again
// for every event it fans out, so their per-subscriber delivery uses
// whichever mode is current when they are dispatched.
func (p *Publisher[K, M]) SetCaptureMode(mode CaptureMode) {
	p.mode.Store(int32(mode))
}

// GetFilter returns the currently active filter.
func (p *Publisher[K, M]) GetFilter() Filter[K, M] {
	if f := p.filter.Load(); f != nil {
		return *f
	}

	return Permissive[K, M]{}
}

// SetFilter atomically swaps the active filter.
func (p *Publisher[K, M]) SetFilter(filter Filter[K, M]) {
	p.filter.Store(&filter)
}

// GetMissedCaptures returns the number of capture attempts dropped
// because the capture channel was full under non-blocking capture mode.
func (p *Publisher[K, M]) GetMissedCaptures() uint64 {
	return p.metrics.MissedTotal.Load()
}

// ResetMissedCaptures resets the missed-capture counter to zero.
func (p *Publisher[K, M]) ResetMissedCaptures() {
	p.metrics.MissedTotal.Store(0)
}

// SubscriberCount returns the number of distinct live subscriptions.
func (p *Publisher[K, M]) SubscriberCount() int {
	return p.registry.subscriberCount()
}

// Close closes the capture channel exactly once, letting the dispatcher
// goroutine drain any queued events and exit, then waits for that exit
// or for ctx to be done, whichever comes first.
func (p *Publisher[K, M]) Close(ctx context.Context) error {
	p.closeMu.Lock()
	alreadyClosed := p.closed
	if !alreadyClosed {
		p.closed = true
		close(p.captureCh)
	}
	p.closeMu.Unlock()

	if !alreadyClosed {
		p.logger.Info("publisher closing", "missed_captures", p.GetMissedCaptures())
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
