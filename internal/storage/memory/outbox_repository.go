package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

type outboxStatus string

const (
	outboxPending outboxStatus = "pending"
	outboxSent    outboxStatus = "sent"
	outboxFailed  outboxStatus = "failed"
)

// outboxRecord сообщение outbox со служебными полями. seq задаёт порядок записи,
// который в памяти не выводится из времени.
type outboxRecord struct {
	msg       domain.OutboxMessage
	status    outboxStatus
	seq       int64
	createdAt time.Time
	updatedAt time.Time
}

type outboxRepository struct{ s *Store }

func (r outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.s.now()
	err := r.s.mutate(func(d *dataset) error {
		if _, taken := d.outbox[msg.ID]; taken {
			return domain.ErrAlreadyExists
		}
		d.outboxSeq++
		d.outbox[msg.ID] = outboxRecord{msg: msg, status: outboxPending, seq: d.outboxSeq, createdAt: now, updatedAt: now}
		return nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// sortedBySeq отбирает записи по условию keep в порядке постановки.
func sortedBySeq(d *dataset, keep func(outboxRecord) bool) []outboxRecord {
	var out []outboxRecord
	for _, rec := range d.outbox {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b outboxRecord) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

func (r outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var batch []domain.OutboxMessage
	r.s.view(func(d *dataset) {
		for _, rec := range sortedBySeq(d, func(rec outboxRecord) bool { return rec.status == outboxPending }) {
			if len(batch) == limit {
				break
			}
			batch = append(batch, rec.msg)
		}
	})
	return batch, nil
}

func (r outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	r.s.view(func(d *dataset) {
		for _, rec := range d.outbox {
			if rec.status != outboxPending {
				continue
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = rec.createdAt
			}
		}
	})
	return stats, nil
}

func (r outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, outboxSent)
}

func (r outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.settle(id, outboxFailed)
}

// PurgeSent удаляет до limit отправленных сообщений, помеченных не позже before.
func (r outboxRepository) PurgeSent(_ context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	var purged int
	err := r.s.mutate(func(d *dataset) error {
		expired := sortedBySeq(d, func(rec outboxRecord) bool {
			return rec.status == outboxSent && !rec.updatedAt.After(before)
		})
		for _, rec := range expired[:min(limit, len(expired))] {
			delete(d.outbox, rec.msg.ID)
			purged++
		}
		return nil
	})
	return purged, err
}

func (r outboxRepository) settle(id string, status outboxStatus) error {
	now := r.s.now()
	return r.s.mutate(func(d *dataset) error {
		rec, ok := d.outbox[id]
		if !ok {
			return domain.NotFound("outbox message", id)
		}
		rec.status, rec.updatedAt = status, now
		d.outbox[id] = rec
		return nil
	})
}

var _ domain.OutboxRepository = outboxRepository{}
