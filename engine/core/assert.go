package core

import "fmt"

// Contract checks for the hot render-loop API. A failed assertion is a host
// programming error: it is reported immediately and the process panics rather
// than letting a corrupted frame surface later.

// Assert panics with the given message when the condition is false.
func Assert(condition bool, msg string) {
	if !condition {
		LogError("contract violation: %s", msg)
		panic(fmt.Sprintf("contract violation: %s", msg))
	}
}

// AssertMsg is like Assert with printf-style formatting.
func AssertMsg(condition bool, format string, args ...interface{}) {
	if !condition {
		msg := fmt.Sprintf(format, args...)
		LogError("contract violation: %s", msg)
		panic(fmt.Sprintf("contract violation: %s", msg))
	}
}

// AssertNotNil panics when a required reference is nil.
func AssertNotNil(v interface{}, name string) {
	if v == nil {
		LogError("contract violation: %s must not be nil", name)
		panic(fmt.Sprintf("contract violation: %s must not be nil", name))
	}
}
