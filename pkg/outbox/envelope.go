package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the current payload envelope schema.
const EnvelopeVersion = 1

// ActorRef identifies who produced the event. System jobs leave it nil.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Source string    `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
