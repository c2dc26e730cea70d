// Package catalog управляет пользователями, категориями и товарами.
package catalog

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/merge"
)

// PasswordHasher хеширует пароли и сверяет их с сохранённым хешем.
type PasswordHasher interface {
	merge.PasswordHasher
	Compare(hash, password string) error
}

// Service реализует операции каталога поверх Store.
type Service struct {
	store  domain.Store
	hasher PasswordHasher
	logger *log.Entry
	now    func() time.Time
}

// NewService конструирует сервис с зависимостями.
func NewService(store domain.Store, hasher PasswordHasher, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-service")
	}
	return &Service{
		store:  store,
		hasher: hasher,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}
