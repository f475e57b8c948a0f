package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a product lifecycle event.
type EventType string

const (
	EventProductCreated   EventType = "ProductCreated"
	EventProductPurchased EventType = "ProductPurchased"
)

// Event carries a full product snapshot taken right after the mutation.
type Event struct {
	ID         uuid.UUID
	Type       EventType
	Product    Product
	OccurredAt time.Time
}

// NewEvent stamps a snapshot with a fresh id and the current time.
func NewEvent(eventType EventType, product Product) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Product:    product,
		OccurredAt: time.Now().UTC(),
	}
}
