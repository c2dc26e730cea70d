package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/merge"
)

const minPasswordLen = 6

// RegisterUser создаёт учётную запись с bcrypt-хешем пароля.
func (s *Service) RegisterUser(ctx context.Context, cmd domain.RegisterUserCommand) (domain.User, error) {
	details := map[string]string{}
	if strings.TrimSpace(cmd.Name) == "" {
		details["name"] = "is required"
	}
	if strings.TrimSpace(cmd.Username) == "" {
		details["username"] = "is required"
	}
	if len(cmd.Password) < minPasswordLen {
		details["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLen)
	}
	role := cmd.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	if !role.Valid() {
		details["role"] = "must be customer or admin"
	}
	if len(details) > 0 {
		return domain.User{}, &domain.ValidationError{Details: details}
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user, err := s.store.Users().Create(ctx, domain.User{
		Name:         strings.TrimSpace(cmd.Name),
		Username:     strings.TrimSpace(cmd.Username),
		PasswordHash: hash,
		Email:        strings.TrimSpace(cmd.Email),
		Address:      strings.TrimSpace(cmd.Address),
		Phone:        strings.TrimSpace(cmd.Phone),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		s.logger.WithError(err).WithField("username", cmd.Username).Warn("failed to register user")
		return domain.User{}, err
	}

	s.logger.WithFields(log.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return user, nil
}

// GetUser возвращает неудалённого пользователя.
func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.store.Users().Get(ctx, id)
}

// ListUsers возвращает страницу пользователей.
func (s *Service) ListUsers(ctx context.Context, page domain.Page) ([]domain.User, int, error) {
	return s.store.Users().List(ctx, page)
}

// UpdateUser применяет частичное обновление профиля.
func (s *Service) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (domain.User, error) {
	var result domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		existing, err := tx.Users().Get(ctx, id)
		if err != nil {
			return err
		}
		if upd.IsEmpty() {
			result = existing
			return nil
		}
		merged, err := merge.User(existing, upd, s.hasher)
		if err != nil {
			return err
		}
		merged.UpdatedAt = s.now()
		result, err = tx.Users().Update(ctx, merged)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", id).Warn("failed to update user")
		return domain.User{}, err
	}
	return result, nil
}

// SearchUsers ищет пользователей по подстроке в имени, логине, email и телефоне.
func (s *Service) SearchUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	return s.store.Users().Search(ctx, filter)
}

// ChangePassword меняет пароль после проверки текущего.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	return s.setPassword(ctx, id, next, func(u domain.User) error {
		if err := s.hasher.Compare(u.PasswordHash, current); err != nil {
			return &domain.ValidationError{Details: map[string]string{"currentPassword": "does not match"}}
		}
		return nil
	})
}

// ResetPassword задаёт новый пароль без проверки текущего. Доступно администратору.
func (s *Service) ResetPassword(ctx context.Context, id, next string) error {
	return s.setPassword(ctx, id, next, nil)
}

func (s *Service) setPassword(ctx context.Context, id, next string, check func(domain.User) error) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		existing, err := tx.Users().Get(ctx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(existing); err != nil {
				return err
			}
		}
		merged, err := merge.User(existing, domain.UserUpdate{Password: domain.Some(next)}, s.hasher)
		if err != nil {
			return err
		}
		merged.UpdatedAt = s.now()
		_, err = tx.Users().Update(ctx, merged)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", id).Warn("failed to set password")
		return err
	}
	s.logger.WithField("user_id", id).Info("password changed")
	return nil
}

// ChangeRole назначает пользователю роль. Доступно администратору.
func (s *Service) ChangeRole(ctx context.Context, id string, role domain.Role) (domain.User, error) {
	if !role.Valid() {
		return domain.User{}, &domain.ValidationError{Details: map[string]string{"role": "must be customer or admin"}}
	}

	var result domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		existing, err := tx.Users().Get(ctx, id)
		if err != nil {
			return err
		}
		if existing.Role == role {
			result = existing
			return nil
		}
		existing.Role = role
		existing.UpdatedAt = s.now()
		result, err = tx.Users().Update(ctx, existing)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", id).Warn("failed to change role")
		return domain.User{}, err
	}
	s.logger.WithFields(log.Fields{"user_id": id, "role": role}).Info("role changed")
	return result, nil
}

// DeleteUser мягко удаляет пользователя. Его заказы остаются доступны администратору.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.Users().SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("user_id", id).Info("user deleted")
	return nil
}

// EnsureAdmin создаёт администратора, если логин ещё свободен.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (domain.User, error) {
	existing, err := s.store.Users().GetByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}
	return s.RegisterUser(ctx, domain.RegisterUserCommand{
		Name:     "Administrator",
		Username: username,
		Password: password,
		Role:     domain.RoleAdmin,
	})
}
