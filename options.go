// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

// CaptureMode is the producer-side back-pressure policy applied when the
// capture channel is full.
type CaptureMode int32

const (
	// Blocking makes the capture entry point block until the capture
	// channel accepts the event.
	Blocking CaptureMode = iota
	// NonBlocking makes the capture entry point give up immediately and
	// count a missed capture when the channel is full.
	NonBlocking
)

const (
	// DefaultCaptureChannelBound is the default size of the capture
	// channel shared by every producer.
	DefaultCaptureChannelBound = 64
	// DefaultSubscriptionChannelBound is added to the number of
	// subscribed identifiers to size a specific-ids subscription's
	// queue.
	DefaultSubscriptionChannelBound = 16
)

type config[K comparable, M any] struct {
	filter                   Filter[K, M]
	control                  ControlIDs[K]
	mode                     CaptureMode
	captureChannelBound      int
	subscriptionChannelBound int
	timestampKind            TimestampKind
	onEvent                  func(*Event[K, M])
}

func defaultConfig[K comparable, M any]() config[K, M] {
	return config[K, M]{
		filter:                   Permissive[K, M]{},
		mode:                     Blocking,
		captureChannelBound:      DefaultCaptureChannelBound,
		subscriptionChannelBound: DefaultSubscriptionChannelBound,
		timestampKind:            TimestampOnCreated,
	}
}

// Option configures a Publisher at construction time.
type Option[K comparable, M any] func(*config[K, M])

// WithFilter sets the initial filter consulted by the capture entry
// point for non-control identifiers. Defaults to Permissive.
func WithFilter[K comparable, M any](filter Filter[K, M]) Option[K, M] {
	return func(c *config[K, M]) {
		c.filter = filter
	}
}

// WithControlIDs enables the capture-control protocol using the given
// reserved start/stop identifiers. Without this option, Start and Stop
// are no-ops and every capture is gated by the capturing flag normally
// (which starts, and stays, active).
func WithControlIDs[K comparable, M any](control ControlIDs[K]) Option[K, M] {
	return func(c *config[K, M]) {
		c.control = control
	}
}

// WithCaptureMode sets the producer-side back-pressure policy. Defaults
// to Blocking.
func WithCaptureMode[K comparable, M any](mode CaptureMode) Option[K, M] {
	return func(c *config[K, M]) {
		c.mode = mode
	}
}

// WithCaptureChannelBound sets the size of the shared capture channel.
// Defaults to DefaultCaptureChannelBound.
func WithCaptureChannelBound[K comparable, M any](bound int) Option[K, M] {
	return func(c *config[K, M]) {
		c.captureChannelBound = bound
	}
}

// WithSubscriptionChannelBound sets the constant added to |ids| when
// sizing a specific-ids subscription's queue. Defaults to
// DefaultSubscriptionChannelBound.
func WithSubscriptionChannelBound[K comparable, M any](bound int) Option[K, M] {
	return func(c *config[K, M]) {
		c.subscriptionChannelBound = bound
	}
}

// WithTimestampKind selects when Event.Timestamp is stamped. Defaults to
// TimestampOnCreated.
func WithTimestampKind[K comparable, M any](kind TimestampKind) Option[K, M] {
	return func(c *config[K, M]) {
		c.timestampKind = kind
	}
}

// WithOnEvent registers a hook invoked by the dispatcher after the
// mandatory fan-out completes, for side-effect observation only (logging,
// metrics export). Delivery guarantees never depend on this hook.
func WithOnEvent[K comparable, M any](fn func(*Event[K, M])) Option[K, M] {
	return func(c *config[K, M]) {
		c.onEvent = fn
	}
}
