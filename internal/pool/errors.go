package pool

import (
	"fmt"
	"time"
)

// exhaustedError signals that every slot stayed busy for the whole admission
// wait. Maps to 503 with a retry hint.
type exhaustedError struct{ wait time.Duration }

func (e exhaustedError) Error() string {
	return fmt.Sprintf("no free model slot within %s", e.wait)
}

// IsExhausted reports whether err indicates admission backpressure.
func IsExhausted(err error) bool {
	_, ok := err.(exhaustedError)
	return ok
}

// closedError signals an acquire against a pool that is shutting down.
type closedError struct{}

func (closedError) Error() string { return "slot pool is shut down" }

// IsClosed reports whether err indicates the pool stopped admitting work.
func IsClosed(err error) bool {
	_, ok := err.(closedError)
	return ok
}
