package events

import (
	"context"
	"errors"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
)

// Fanout publishes every event to all sinks and joins their errors.
type Fanout []domain.EventPublisher

func (f Fanout) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
