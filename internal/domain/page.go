package domain

import "math"

const (
	// DefaultPageSize используется, если размер страницы не задан.
	DefaultPageSize = 20
	// MaxPageSize ограничивает размер одной выборки.
	MaxPageSize = 100
	// MaxPageNumber держит смещение Number*Size в пределах int32.
	MaxPageNumber = math.MaxInt32 / MaxPageSize
)

// Page — параметры постраничной выборки. Number начинается с нуля.
type Page struct {
	Number int
	Size   int
}

// Normalize подставляет значения по умолчанию и обрезает номер и размер.
func (p Page) Normalize() Page {
	p.Number = min(max(p.Number, 0), MaxPageNumber)
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p Page) Offset() int {
	p = p.Normalize()
	return p.Number * p.Size
}

// TotalPages считает количество страниц для total записей.
func (p Page) TotalPages(total int) int {
	p = p.Normalize()
	if total <= 0 {
		return 0
	}
	return (total + p.Size - 1) / p.Size
}
