package outbox

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetention        = 7 * 24 * time.Hour
)

type cleanupSettings struct {
	logger    *log.Entry
	metrics   *metrics.OutboxMetrics
	interval  time.Duration
	batchSize int
	retention time.Duration
	clock     func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*cleanupSettings)

func WithCleanupLogger(logger *log.Entry) CleanupOption {
	return func(s *cleanupSettings) { s.logger = logger }
}

func WithCleanupMetrics(m *metrics.OutboxMetrics) CleanupOption {
	return func(s *cleanupSettings) { s.metrics = m }
}

func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(s *cleanupSettings) { s.interval = interval }
}

// WithCleanupBatchSize ограничивает число строк в одном DELETE.
func WithCleanupBatchSize(batchSize int) CleanupOption {
	return func(s *cleanupSettings) { s.batchSize = batchSize }
}

// WithRetention задаёт срок хранения отправленных сообщений.
func WithRetention(retention time.Duration) CleanupOption {
	return func(s *cleanupSettings) { s.retention = retention }
}

func WithCleanupClock(clock func() time.Time) CleanupOption {
	return func(s *cleanupSettings) { s.clock = clock }
}

// CleanupWorker удаляет отправленные сообщения старше retention.
// Pending и failed остаются в таблице.
type CleanupWorker struct {
	repo domain.OutboxRepository
	cleanupSettings
}

func NewCleanupWorker(repo domain.OutboxRepository, options ...CleanupOption) *CleanupWorker {
	var s cleanupSettings
	for _, option := range options {
		option(&s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "outbox-cleanup")
	}
	if s.interval <= 0 {
		s.interval = defaultCleanupInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultCleanupBatchSize
	}
	if s.retention <= 0 {
		s.retention = defaultRetention
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	return &CleanupWorker{repo: repo, cleanupSettings: s}
}

// Run чистит outbox сразу и затем каждые interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("outbox cleanup is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.cleanup(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	cutoff := w.clock().Add(-w.retention)
	deleted, err := w.PurgeSent(ctx, cutoff)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		w.metrics.RecordCleanup(metrics.CleanupError, deleted)
		w.logger.WithError(err).WithField("cutoff", cutoff).Warn("outbox cleanup failed")
		return
	}

	w.metrics.RecordCleanup(metrics.CleanupOK, deleted)
	if deleted > 0 {
		w.logger.WithFields(log.Fields{"deleted": deleted, "cutoff": cutoff}).Info("purged sent outbox messages")
	}
}

// PurgeSent удаляет отправленные сообщения не новее before, порциями по
// batchSize, пока очередная порция не окажется неполной.
func (w *CleanupWorker) PurgeSent(ctx context.Context, before time.Time) (int, error) {
	var total int
	for ctx.Err() == nil {
		n, err := w.repo.PurgeSent(ctx, before, w.batchSize)
		total += n
		if err != nil || n < w.batchSize {
			return total, err
		}
	}
	return total, ctx.Err()
}
