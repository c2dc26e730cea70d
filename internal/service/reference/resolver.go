// Package reference проверяет внешние ключи перед записью зависимых сущностей.
package reference

import (
	"context"
	"errors"
	"strings"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// Resolver разрешает ссылки через фильтрованное представление Store.
// Удалённая сущность разрешается так же, как отсутствующая.
type Resolver struct {
	store domain.Store
}

// New привязывает резолвер к хранилищу или транзакции.
func New(store domain.Store) *Resolver {
	return &Resolver{store: store}
}

// User разрешает владельца заказа.
func (r *Resolver) User(ctx context.Context, id string) (domain.User, error) {
	return resolve(ctx, "user", id, r.store.Users().Get)
}

// Category разрешает категорию товара.
func (r *Resolver) Category(ctx context.Context, id string) (domain.Category, error) {
	return resolve(ctx, "category", id, r.store.Categories().Get)
}

// Product разрешает товар позиции заказа.
func (r *Resolver) Product(ctx context.Context, id string) (domain.Product, error) {
	return resolve(ctx, "product", id, r.store.Products().Get)
}

func resolve[T any](ctx context.Context, entity, id string, get func(context.Context, string) (T, error)) (T, error) {
	var zero T
	if strings.TrimSpace(id) == "" {
		return zero, &domain.UnresolvedReferenceError{Entity: entity, ID: id}
	}

	v, err := get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return zero, &domain.UnresolvedReferenceError{Entity: entity, ID: id}
		}
		return zero, err
	}
	return v, nil
}
