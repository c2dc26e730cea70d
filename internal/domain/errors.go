package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound возвращается, если сущность отсутствует или мягко удалена.
	ErrNotFound = errors.New("not found")
	// ErrUnresolvedReference сигнализирует, что внешний ключ указывает на отсутствующую или удалённую сущность.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrInvalidQuantity возвращается при количестве позиции <= 0.
	ErrInvalidQuantity = errors.New("item quantity must be greater than zero")
	// ErrMergeRejected возвращается, если частичное обновление содержит некорректное значение.
	ErrMergeRejected = errors.New("update rejected")
	// ErrPersistence оборачивает ошибки драйвера хранилища.
	ErrPersistence = errors.New("persistence failure")
	// ErrOrderCreationRejected возвращается, если владелец заказа не разрешился.
	ErrOrderCreationRejected = errors.New("order creation rejected")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrCartEmpty возвращается при оформлении пустой корзины.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrAlreadyExists возвращается при вставке записи с занятым идентификатором.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrUsernameTaken возвращается, если логин занят неудалённым пользователем.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden возвращается, если у вызывающего нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation оборачивает ошибки валидации входных команд.
	ErrValidation = errors.New("validation failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// NotFoundError уточняет, какая сущность не найдена.
type NotFoundError struct {
	Entity string
	ID     string
}

// NotFound создаёт ошибку отсутствия сущности.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnresolvedReferenceError описывает неразрешённый внешний ключ.
type UnresolvedReferenceError struct {
	Entity string
	ID     string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference: %s %q is missing or deleted", e.Entity, e.ID)
}

func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }

// InvalidQuantityError указывает на позицию запроса с некорректным количеством.
type InvalidQuantityError struct {
	Index     int
	ProductID string
	Quantity  int32
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("items[%d] (product %q): quantity %d must be greater than zero", e.Index, e.ProductID, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// MergeRejectedError указывает поле, которое не удалось применить.
type MergeRejectedError struct {
	Entity string
	Field  string
	Reason string
}

func (e *MergeRejectedError) Error() string {
	return fmt.Sprintf("%s update rejected: field %q: %s", e.Entity, e.Field, e.Reason)
}

func (e *MergeRejectedError) Unwrap() error { return ErrMergeRejected }

// PersistenceError оборачивает сбой хранилища с названием операции.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// ItemFailure описывает позицию, которую не удалось удалить каскадно.
type ItemFailure struct {
	ItemID string
	Err    error
}

// CascadeError возвращается best-effort каскадом: заказ удалён, часть позиций нет.
type CascadeError struct {
	OrderID  string
	Failures []ItemFailure
}

func (e *CascadeError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.ItemID)
	}
	return fmt.Sprintf("order %q deleted, %d item(s) not deleted: %s", e.OrderID, len(e.Failures), strings.Join(ids, ", "))
}

func (e *CascadeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// ValidationError оборачивает ошибки валидации с деталями по полям.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Details))
	for k, v := range e.Details {
		keys = append(keys, k+": "+v)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
