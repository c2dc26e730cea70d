package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// timelineRepository хранит события в памяти (для разработки/тестов).
type timelineRepository struct{ s *Store }

// Append добавляет событие в хранилище.
func (r timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	return r.s.mutate(func(d *dataset) error {
		events := append(d.timeline[event.OrderID], event)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Occurred.Before(events[j].Occurred)
		})
		d.timeline[event.OrderID] = events
		return nil
	})
}

// List возвращает события заказа в хронологическом порядке.
func (r timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var result []domain.TimelineEvent
	r.s.view(func(d *dataset) {
		events := d.timeline[orderID]
		result = make([]domain.TimelineEvent, len(events))
		copy(result, events)
	})
	return result, nil
}

var _ domain.TimelineRepository = timelineRepository{}
