// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import (
	"fmt"
	"runtime"
)

// Origin is the static source-code location tuple associated with an event:
// the package-qualified name of the function (Module), the file, and the
// line where the event was set.
type Origin struct {
	Module string
	File   string
	Line   int
}

// String formats the origin as `module="…", file="…", line=N`.
func (o Origin) String() string {
	return fmt.Sprintf("module=%q, file=%q, line=%d", o.Module, o.File, o.Line)
}

// ThisOrigin captures the origin of its caller. It walks exactly one stack
// frame up from the call site, so it must be called directly at the
// producer site (not from a helper a producer calls into) to be useful.
func ThisOrigin() Origin {
	return callerOrigin(2)
}

// callerOrigin resolves the origin skip frames above callerOrigin itself.
// skip=2 from ThisOrigin lands on ThisOrigin's caller.
func callerOrigin(skip int) Origin {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return Origin{}
	}

	module := ""
	if fn := runtime.FuncForPC(pc); fn != nil {
		module = fn.Name()
	}

	return Origin{Module: module, File: file, Line: line}
}
