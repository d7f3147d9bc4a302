package events

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the exchange. Routing key equals the queue name
// (direct exchange), the kind disambiguates on the consumer side.
const (
	PaymentCreated  = "payment.created"
	PaymentUpdated  = "payment.updated"
	PaymentDeleted  = "payment.deleted"
	SourceCreated   = "source.created"
	SourceDeleted   = "source.deleted"
	CurrencyChanged = "currency.changed"
	RatesRefreshed  = "rates.refreshed"
)

// Envelope is the single message shape published for every event kind.
// Payload carries the kind-specific fields; consumers fetch full records
// from the API when they need more than the ID.
type Envelope struct {
	Kind      string            `json:"kind"`
	EntityID  string            `json:"entity_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEnvelope creates an envelope stamped with the current time.
func NewEnvelope(kind, entityID string, payload map[string]string) *Envelope {
	return &Envelope{
		Kind:      kind,
		EntityID:  entityID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// ToJSON serializes the envelope for publishing.
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EnvelopeFromJSON deserializes a published envelope.
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
