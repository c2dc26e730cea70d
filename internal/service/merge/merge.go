// Package merge применяет частичные обновления к копиям сущностей.
//
// Поле команды применяется только если оно присутствует (Optional.IsSet).
// Функции ничего не сохраняют: запись выполняет вызывающий через Store.
package merge

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

const (
	maxNameLen     = 255
	maxPhoneLen    = 32
	minPasswordLen = 6
)

var validate = validator.New()

// PasswordHasher хеширует новый пароль пользователя.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Order применяет обновление к скалярным полям заказа. Позиции не меняются.
func Order(existing domain.Order, upd domain.OrderUpdate) (domain.Order, error) {
	merged := existing
	if upd.IsEmpty() {
		return merged, nil
	}
	if existing.Status.IsTerminal() {
		return domain.Order{}, reject("order", "status", fmt.Sprintf("order is %s and can no longer change", existing.Status))
	}

	if upd.Status.IsSet() {
		if upd.Status.IsNull() {
			return domain.Order{}, reject("order", "status", "must not be null")
		}
		next, _ := upd.Status.Get()
		status, ok := domain.ParseOrderStatus(string(next))
		if !ok {
			return domain.Order{}, reject("order", "status", fmt.Sprintf("unknown status %q", next))
		}
		if !existing.Status.CanTransitionTo(status) {
			return domain.Order{}, reject("order", "status", fmt.Sprintf("transition %s -> %s is not allowed", existing.Status, status))
		}
		merged.Status = status
	}

	if err := requiredText(&merged.FullName, upd.FullName, "order", "fullName", maxNameLen); err != nil {
		return domain.Order{}, err
	}
	if err := requiredText(&merged.PhoneNumber, upd.PhoneNumber, "order", "phoneNumber", maxPhoneLen); err != nil {
		return domain.Order{}, err
	}
	if err := requiredText(&merged.ShippingAddress, upd.ShippingAddress, "order", "shippingAddress", 0); err != nil {
		return domain.Order{}, err
	}

	merged.Items = append([]domain.OrderItem(nil), existing.Items...)
	return merged, nil
}

// User применяет обновление профиля. Новый пароль хешируется через hasher.
func User(existing domain.User, upd domain.UserUpdate, hasher PasswordHasher) (domain.User, error) {
	merged := existing

	if err := requiredText(&merged.Name, upd.Name, "user", "name", maxNameLen); err != nil {
		return domain.User{}, err
	}

	if upd.Password.IsSet() {
		password, _ := upd.Password.Get()
		if upd.Password.IsNull() || len(password) < minPasswordLen {
			return domain.User{}, reject("user", "password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
		}
		hash, err := hasher.Hash(password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		merged.PasswordHash = hash
	}

	if email, ok := upd.Email.Get(); ok {
		email = strings.TrimSpace(email)
		if email != "" {
			if err := validate.Var(email, "email"); err != nil {
				return domain.User{}, reject("user", "email", "must be a valid email address")
			}
		}
		merged.Email = email
	}

	optionalText(&merged.Address, upd.Address)
	if err := limitedText(&merged.Phone, upd.Phone, "user", "phone", maxPhoneLen); err != nil {
		return domain.User{}, err
	}

	return merged, nil
}

// Product применяет обновление товара. Ссылку на категорию проверяет вызывающий.
func Product(existing domain.Product, upd domain.ProductUpdate) (domain.Product, error) {
	merged := existing

	if err := requiredText(&merged.Name, upd.Name, "product", "name", maxNameLen); err != nil {
		return domain.Product{}, err
	}
	optionalText(&merged.Description, upd.Description)

	if upd.Price.IsSet() {
		if upd.Price.IsNull() {
			return domain.Product{}, reject("product", "price", "must not be null")
		}
		price, _ := upd.Price.Get()
		if price.IsNegative() {
			return domain.Product{}, reject("product", "price", "must be non-negative")
		}
		merged.Price = price
	}

	optionalText(&merged.ImageURL, upd.ImageURL)
	optionalText(&merged.CategoryID, upd.CategoryID)

	return merged, nil
}

// Category применяет обновление категории.
func Category(existing domain.Category, upd domain.CategoryUpdate) (domain.Category, error) {
	merged := existing

	if err := requiredText(&merged.Name, upd.Name, "category", "name", maxNameLen); err != nil {
		return domain.Category{}, err
	}
	optionalText(&merged.Description, upd.Description)

	return merged, nil
}

// requiredText применяет поле, которое нельзя очистить.
func requiredText(dst *string, opt domain.Optional[string], entity, field string, maxLen int) error {
	if !opt.IsSet() {
		return nil
	}
	v, _ := opt.Get()
	v = strings.TrimSpace(v)
	if opt.IsNull() || v == "" {
		return reject(entity, field, "must not be empty")
	}
	if maxLen > 0 && len(v) > maxLen {
		return reject(entity, field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
	*dst = v
	return nil
}

// limitedText применяет очищаемое поле с ограничением длины.
func limitedText(dst *string, opt domain.Optional[string], entity, field string, maxLen int) error {
	v, ok := opt.Get()
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if len(v) > maxLen {
		return reject(entity, field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
	*dst = v
	return nil
}

// optionalText применяет поле, которое можно очистить значением null или "".
func optionalText(dst *string, opt domain.Optional[string]) {
	if v, ok := opt.Get(); ok {
		*dst = strings.TrimSpace(v)
	}
}

func reject(entity, field, reason string) error {
	return &domain.MergeRejectedError{Entity: entity, Field: field, Reason: reason}
}
