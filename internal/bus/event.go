package bus

import "time"

// Event is a domain event published on the bus. Kind is dot-namespaced:
// "tg." for inbound transport events, "ingest." for storage outcomes,
// "daemon." for runtime state changes.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
