// Package auth выдаёт и проверяет bearer-токены и хеширует пароли пользователей.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

const tokenIssuer = "furniture-store"

// BcryptHasher хеширует пароли bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher создаёт хешер; cost <= 0 означает bcrypt.DefaultCost.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{cost: cost}
}

// Hash возвращает bcrypt-хеш пароля.
func (h BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare возвращает ErrInvalidCredentials, если пароль не совпадает с хешем.
func (h BcryptHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return domain.ErrInvalidCredentials
	}
	return nil
}

// Principal — аутентифицированный вызывающий.
type Principal struct {
	UserID string
	Role   domain.Role
}

// IsAdmin сообщает, что вызывающий — администратор.
func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

// CanAccess разрешает доступ к ресурсу владельца или администратору.
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsAdmin() || (p.UserID != "" && p.UserID == ownerID)
}

// Claims — набор полей access-токена.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager выпускает и проверяет HS256 JWT.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue выпускает токен для пользователя.
func (m *TokenManager) Issue(user domain.User) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

// Parse проверяет подпись и срок действия токена.
func (m *TokenManager) Parse(token string) (Principal, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, err)
	}
	if !tkn.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return Principal{}, domain.ErrInvalidCredentials
	}
	return Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// Session — результат успешного входа.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        domain.User
}

// Authenticator проверяет логин и пароль и выпускает токен.
type Authenticator struct {
	users  domain.UserRepository
	hasher BcryptHasher
	tokens *TokenManager
}

// NewAuthenticator собирает Authenticator.
func NewAuthenticator(users domain.UserRepository, hasher BcryptHasher, tokens *TokenManager) *Authenticator {
	return &Authenticator{users: users, hasher: hasher, tokens: tokens}
}

// Login возвращает ErrInvalidCredentials и для неизвестного логина, и для неверного пароля.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := a.hasher.Compare(user.PasswordHash, password); err != nil {
		return Session{}, err
	}

	token, exp, err := a.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, ExpiresAt: exp, User: user}, nil
}
