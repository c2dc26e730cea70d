package postgres

import (
	"context"
	"database/sql"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// timelineRepository хранит журнал заказа. Журнал не подчиняется soft delete:
// удаление заказа само пишет в него событие.
type timelineRepository struct {
	s *Store
}

func (r timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = r.s.now()
	}

	_, err := r.s.q.ExecContext(ctx,
		`INSERT INTO timeline_events (order_id, type, reason, occurred) VALUES ($1, $2, $3, $4)`,
		event.OrderID, event.Type, event.Reason, occurred.UTC(),
	)
	return persistence("append timeline event for order "+event.OrderID, err)
}

// List возвращает события заказа в порядке записи.
func (r timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.q.QueryContext(ctx,
		`SELECT order_id, type, reason, occurred FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`,
		orderID,
	)
	if err != nil {
		return nil, persistence("list timeline events", err)
	}
	return collectRows(rows, "timeline event", func(rows *sql.Rows) (domain.TimelineEvent, error) {
		var e domain.TimelineEvent
		err := rows.Scan(&e.OrderID, &e.Type, &e.Reason, &e.Occurred)
		e.Occurred = e.Occurred.UTC()
		return e, err
	})
}

var _ domain.TimelineRepository = timelineRepository{}
