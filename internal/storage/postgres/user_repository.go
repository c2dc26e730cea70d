package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

const (
	userColumns = `id, name, username, password_hash, email, address, phone, role, deleted, created_at, updated_at`

	constraintUsernameLive = "users_username_live_idx"
)

type userRepository struct {
	s *Store
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(
		&u.ID, &u.Name, &u.Username, &u.PasswordHash, &u.Email, &u.Address, &u.Phone,
		&role, &u.Deleted, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (r userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	u, err := scanUser(r.s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND `+r.s.live("deleted"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.NotFound("user", id)
		}
		return domain.User{}, persistence("select user", err)
	}
	return u, nil
}

func (r userRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	u, err := scanUser(r.s.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(username) = $1 AND `+r.s.live("deleted")+`
		ORDER BY deleted ASC, created_at DESC
		LIMIT 1
	`, domain.NormalizeUsername(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.NotFound("user", username)
		}
		return domain.User{}, persistence("select user by username", err)
	}
	return u, nil
}

func (r userRepository) List(ctx context.Context, page domain.Page) ([]domain.User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	page = page.Normalize()

	var total int
	if err := r.s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE `+r.s.live("deleted")).Scan(&total); err != nil {
		return nil, 0, persistence("count users", err)
	}

	rows, err := r.s.q.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE `+r.s.live("deleted")+`
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`, page.Size, page.Offset())
	if err != nil {
		return nil, 0, persistence("list users", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, page.Size)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, persistence("scan user row", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, persistence("iterate user rows", err)
	}
	return users, total, nil
}

// Search ищет подстроку через ILIKE в имени, логине, email и телефоне.
func (r userRepository) Search(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	page := filter.Page.Normalize()

	cond := r.s.live("deleted")
	args := make([]any, 0, 3)
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		args = append(args, "%"+escapeLike(kw)+"%")
		cond += " AND (name ILIKE $1 OR username ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1)"
	}

	var total int
	if err := r.s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, persistence("count users", err)
	}

	args = append(args, page.Size, page.Offset())
	rows, err := r.s.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s
		ORDER BY created_at ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, userColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, persistence("search users", err)
	}
	users, err := collectRows(rows, "user row", func(rows *sql.Rows) (domain.User, error) { return scanUser(rows) })
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r userRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	stampCreated(&user.CreatedAt, &user.UpdatedAt, r.s.now())

	_, err := r.s.q.ExecContext(ctx, `
		INSERT INTO users (
			id, name, username, password_hash, email, address, phone, role, deleted, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,FALSE,$9,$10)
	`,
		user.ID, user.Name, user.Username, user.PasswordHash, user.Email, user.Address, user.Phone,
		string(user.Role), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, userWriteError("insert user", err)
	}
	user.Deleted = false
	return user, nil
}

func (r userRepository) Update(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.s.q.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2,
		    username = $3,
		    password_hash = $4,
		    email = $5,
		    address = $6,
		    phone = $7,
		    role = $8,
		    updated_at = $9
		WHERE id = $1 AND deleted = FALSE
		RETURNING created_at
	`,
		user.ID, user.Name, user.Username, user.PasswordHash, user.Email, user.Address, user.Phone,
		string(user.Role), user.UpdatedAt,
	).Scan(&user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.NotFound("user", user.ID)
		}
		return domain.User{}, userWriteError("update user", err)
	}
	user.Deleted = false
	return user, nil
}

func (r userRepository) SoftDelete(ctx context.Context, id string) error {
	return softDelete(ctx, r.s, "users", "user", id)
}

func userWriteError(op string, err error) error {
	if constraint, ok := isUniqueViolation(err); ok {
		if constraint == constraintUsernameLive {
			return domain.ErrUsernameTaken
		}
		return domain.ErrAlreadyExists
	}
	return persistence(op, err)
}

// softDelete помечает живую запись удалённой. Повторный вызов вернёт NotFound.
func softDelete(ctx context.Context, s *Store, table, entity, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.q.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET deleted = TRUE, updated_at = $2
		WHERE id = $1 AND deleted = FALSE
	`, table), id, s.now())
	if err != nil {
		return persistence("soft delete "+entity, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence("rows affected for "+entity, err)
	}
	if affected == 0 {
		return domain.NotFound(entity, id)
	}
	return nil
}

var _ domain.UserRepository = userRepository{}
