package domain

import (
	"bytes"
	"encoding/json"
)

// Optional хранит значение поля частичного обновления.
//
// Нулевое значение означает «поле не передано». Явный JSON null помечает
// поле как переданное и пустое: IsSet() == true, IsNull() == true.
type Optional[T any] struct {
	value T
	set   bool
	null  bool
}

// Some возвращает переданное значение.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Null возвращает явно очищенное поле.
func Null[T any]() Optional[T] {
	return Optional[T]{set: true, null: true}
}

// IsSet сообщает, присутствует ли поле в команде.
func (o Optional[T]) IsSet() bool { return o.set }

// IsNull сообщает, передан ли явный null.
func (o Optional[T]) IsNull() bool { return o.set && o.null }

// Get возвращает значение и признак присутствия поля. Для null возвращается нулевое значение T.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// UnmarshalJSON вызывается только для ключей, присутствующих в теле запроса.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.value = zero
		o.null = true
		return nil
	}
	o.null = false
	return json.Unmarshal(data, &o.value)
}

// MarshalJSON сериализует отсутствующее поле и null одинаково.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
