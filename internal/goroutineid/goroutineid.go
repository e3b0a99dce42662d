// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

// Package goroutineid extracts the calling goroutine's numeric id.
//
// Go has no public API for this (by design: goroutine ids are not meant to
// be load-bearing), but the event data model needs something to stand in
// for the original thread-id field captured at construction. The only
// available source is the "goroutine N [running]:" header of a stack
// trace, so that's what this package parses. Treat the result as a
// best-effort diagnostic value, never as a stable identity.
package goroutineid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns the id of the calling goroutine, or 0 if it could not be
// parsed out of the stack trace.
func Current() uint64 {
	buf := make([]byte, 64)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]

	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}

	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}

	return id
}
