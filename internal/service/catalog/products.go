package catalog

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/merge"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/reference"
)

// CreateCategory создаёт категорию.
func (s *Service) CreateCategory(ctx context.Context, name, description string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, &domain.ValidationError{Details: map[string]string{"name": "is required"}}
	}
	now := s.now()
	return s.store.Categories().Create(ctx, domain.Category{
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// GetCategory возвращает категорию.
func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	return s.store.Categories().Get(ctx, id)
}

// ListCategories возвращает все неудалённые категории.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.store.Categories().List(ctx)
}

// UpdateCategory применяет частичное обновление категории.
func (s *Service) UpdateCategory(ctx context.Context, id string, upd domain.CategoryUpdate) (domain.Category, error) {
	var result domain.Category
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		existing, err := tx.Categories().Get(ctx, id)
		if err != nil {
			return err
		}
		if upd.IsEmpty() {
			result = existing
			return nil
		}
		merged, err := merge.Category(existing, upd)
		if err != nil {
			return err
		}
		merged.UpdatedAt = s.now()
		result, err = tx.Categories().Update(ctx, merged)
		return err
	})
	return result, err
}

// DeleteCategory мягко удаляет категорию. Товары категории не затрагиваются,
// но новые товары сослаться на неё уже не смогут.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.Categories().SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("category_id", id).Info("category deleted")
	return nil
}

// CreateProduct создаёт товар; категория, если задана, должна быть активной.
func (s *Service) CreateProduct(ctx context.Context, cmd domain.CreateProductCommand) (domain.Product, error) {
	details := map[string]string{}
	if strings.TrimSpace(cmd.Name) == "" {
		details["name"] = "is required"
	}
	if cmd.Price.IsNegative() {
		details["price"] = "must be non-negative"
	}
	if len(details) > 0 {
		return domain.Product{}, &domain.ValidationError{Details: details}
	}

	var created domain.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		categoryID := strings.TrimSpace(cmd.CategoryID)
		if categoryID != "" {
			if _, err := reference.New(tx).Category(ctx, categoryID); err != nil {
				return err
			}
		}
		now := s.now()
		var err error
		created, err = tx.Products().Create(ctx, domain.Product{
			Name:        strings.TrimSpace(cmd.Name),
			Description: strings.TrimSpace(cmd.Description),
			Price:       cmd.Price,
			ImageURL:    strings.TrimSpace(cmd.ImageURL),
			CategoryID:  categoryID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("category_id", cmd.CategoryID).Warn("failed to create product")
		return domain.Product{}, err
	}
	return created, nil
}

// GetProduct возвращает товар.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.store.Products().Get(ctx, id)
}

// ListProducts возвращает страницу товаров с фильтром по категории и ключевому слову.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	return s.store.Products().List(ctx, filter)
}

// UpdateProduct применяет частичное обновление товара. Изменение цены не влияет
// на уже оформленные заказы: позиции хранят снимок цены.
func (s *Service) UpdateProduct(ctx context.Context, id string, upd domain.ProductUpdate) (domain.Product, error) {
	var result domain.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		existing, err := tx.Products().Get(ctx, id)
		if err != nil {
			return err
		}
		if upd.IsEmpty() {
			result = existing
			return nil
		}
		merged, err := merge.Product(existing, upd)
		if err != nil {
			return err
		}
		if merged.CategoryID != "" && merged.CategoryID != existing.CategoryID {
			if _, err := reference.New(tx).Category(ctx, merged.CategoryID); err != nil {
				return err
			}
		}
		merged.UpdatedAt = s.now()
		result, err = tx.Products().Update(ctx, merged)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("product_id", id).Warn("failed to update product")
		return domain.Product{}, err
	}
	return result, nil
}

// DeleteProduct мягко удаляет товар. Существующие позиции заказов сохраняют ссылку.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.Products().SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}
