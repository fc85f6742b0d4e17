package events

import (
	"time"

	"github.com/google/uuid"
)

const eventVersion = "1.0"

// Envelope carries the fields shared by every published event
type Envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// NewEnvelope creates an envelope with a fresh id
func NewEnvelope(eventType string) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "oidworker",
		Timestamp: time.Now().UTC(),
		Version:   eventVersion,
	}
}
