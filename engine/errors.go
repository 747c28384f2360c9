package engine

import "errors"

// Resource exhaustion (§5, §7): allocation failure is logged and, for OPEN
// and LISTEN, reported to the originating application with a failure
// marker in the reply rather than returned as a Go error from the dispatch
// entry points, since the peer/application protocol has its own failure
// signaling. An ECHO that finds the table full is only logged.
var (
	errConnTableFull   = errors.New("ncp: connection table full")
	errListenTableFull = errors.New("ncp: listening table full")
)
