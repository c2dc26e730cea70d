package domain

import (
	"strings"
	"time"
)

// Role определяет набор прав пользователя.
type Role string

const (
	// RoleCustomer — покупатель, работает только со своими заказами.
	RoleCustomer Role = "customer"
	// RoleAdmin управляет каталогом и видит все заказы.
	RoleAdmin Role = "admin"
)

// Valid проверяет, что роль известна.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// User — учётная запись покупателя или администратора.
type User struct {
	ID       string
	Name     string
	Username string
	// PasswordHash хранит bcrypt-хеш, открытый пароль никогда не сохраняется.
	PasswordHash string
	Email        string
	Address      string
	Phone        string
	Role         Role
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeUsername приводит логин к каноническому виду для проверки уникальности.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// RegisterUserCommand описывает создание учётной записи.
type RegisterUserCommand struct {
	Name     string
	Username string
	Password string
	Email    string
	Address  string
	Phone    string
	Role     Role
}

// UserUpdate — частичное обновление профиля.
type UserUpdate struct {
	Name     Optional[string] `json:"name"`
	Password Optional[string] `json:"password"`
	Email    Optional[string] `json:"email"`
	Address  Optional[string] `json:"address"`
	Phone    Optional[string] `json:"phone"`
}

// IsEmpty сообщает, что команда не содержит ни одного поля.
func (u UserUpdate) IsEmpty() bool {
	return !u.Name.IsSet() && !u.Password.IsSet() && !u.Email.IsSet() && !u.Address.IsSet() && !u.Phone.IsSet()
}

// UserFilter задаёт поиск пользователей.
type UserFilter struct {
	// Keyword ищется без учёта регистра в имени, логине, email и телефоне.
	Keyword string
	Page    Page
}
