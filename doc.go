// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

// Package evident provides an in-process, multi-producer/multi-consumer
// event bus with selective fan-out by event identifier.
//
// Producers construct an event through an intermediary handle, optionally
// enrich it, and let it go out of scope; consumers pre-register interest in
// specific identifiers (or in every identifier) and receive matching events
// asynchronously through bounded per-subscription queues. A single
// background dispatcher decouples producers from consumers so that no
// producer ever performs per-subscriber delivery work itself.
//
// # Usage
//
//	pub := evident.New[string, string]()
//	defer pub.Close(context.Background())
//
//	sub, err := pub.Subscribe("build.finished")
//	if err != nil {
//		// handle err
//	}
//	defer sub.Close()
//
//	msg := "ok"
//	evident.Emit(pub, "build.finished", &msg, evident.ThisOrigin(), "")
//
//	received := <-sub.Events()
//
// The dispatcher, subscription registry, intermediary-event mechanism,
// filter hook and capture-control protocol are the only non-trivial
// engineering in this module; concrete identifier and message types,
// concrete filters, and any convenience surface binding the generics to a
// single configured instance are left to callers.
package evident
