package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// outboxStatus значения колонки outbox_messages.status.
type outboxStatus = string

const (
	outboxPending outboxStatus = "pending"
	outboxSent    outboxStatus = "sent"
	outboxFailed  outboxStatus = "failed"

	defaultPullLimit = 100
)

// outboxRepository пишет через r.s.q, поэтому Enqueue внутри WithinTx
// фиксируется вместе с заказом.
type outboxRepository struct {
	s *Store
}

func (r outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.s.now()

	_, err := r.s.q.ExecContext(ctx, `
		INSERT INTO outbox_messages
			(id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, outboxPending, now,
	)
	if _, dup := isUniqueViolation(err); dup {
		return domain.OutboxMessage{}, domain.ErrAlreadyExists
	}
	if err != nil {
		return domain.OutboxMessage{}, persistence("enqueue "+msg.EventType+" outbox message", err)
	}
	return msg, nil
}

// PullPending возвращает самые старые pending сообщения в порядке записи.
func (r outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultPullLimit
	}

	rows, err := r.s.q.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2`, outboxPending, limit)
	if err != nil {
		return nil, persistence("pull pending outbox messages", err)
	}
	return collectRows(rows, "outbox message", func(rows *sql.Rows) (domain.OutboxMessage, error) {
		var m domain.OutboxMessage
		err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload)
		return m, err
	})
}

func (r outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.s.q.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = $1`, outboxPending,
	).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, persistence("outbox stats", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.settle(ctx, id, outboxSent)
}

func (r outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.settle(ctx, id, outboxFailed)
}

// settle переводит сообщение в итоговый статус и считает попытку.
func (r outboxRepository) settle(ctx context.Context, id string, status outboxStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.q.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1`, id, status, r.s.now())
	if err != nil {
		return persistence("mark outbox message "+status, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return persistence("mark outbox message "+status, err)
	} else if n == 0 {
		return domain.NotFound("outbox message", id)
	}
	return nil
}

// PurgeSent удаляет до limit отправленных сообщений, обновлённых не позже before.
func (r outboxRepository) PurgeSent(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.q.ExecContext(ctx, `
		DELETE FROM outbox_messages
		WHERE id IN (
			SELECT id FROM outbox_messages
			WHERE status = $1 AND updated_at <= $2
			ORDER BY updated_at, id
			LIMIT $3
		)`, outboxSent, before.UTC(), limit)
	if err != nil {
		return 0, persistence("purge sent outbox messages", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistence("purge sent outbox messages", err)
	}
	return int(n), nil
}

var _ domain.OutboxRepository = outboxRepository{}
