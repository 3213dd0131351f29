package notify

import "fmt"

// TransportError marks a delivery failure on an outbound channel. Callers
// log it and carry on; it never unwinds a committed booking.
type TransportError struct {
	Channel string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("notify: %s delivery failed: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
