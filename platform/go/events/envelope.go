package events

import "time"

// EnvelopeVersion is the fixed schema version of the envelope itself.
const EnvelopeVersion = 1

// Envelope is the metadata wrapper around every published payload. It is
// attached by the publisher, never by callers; the key doubles as the
// partition/dedup key on the bus.
type Envelope struct {
	EventID      string    `json:"eventId"`
	EventType    string    `json:"eventType"`
	EventVersion int       `json:"eventVersion"`
	OccurredAt   time.Time `json:"occurredAt"`
	Producer     string    `json:"producer"`
	Key          string    `json:"key"`
	Payload      any       `json:"payload"`
}
