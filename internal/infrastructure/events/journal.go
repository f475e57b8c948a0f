// Package events provides sinks for product lifecycle events.
package events

import (
	"context"
	"sync"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
)

// Journal keeps every published event in memory in publish order.
type Journal struct {
	mu     sync.RWMutex
	events []domain.Event
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Publish(_ context.Context, event domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (j *Journal) Events() []domain.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]domain.Event(nil), j.events...)
}
