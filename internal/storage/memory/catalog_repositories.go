package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

type userRepository struct{ s *Store }

func (r userRepository) Get(_ context.Context, id string) (domain.User, error) {
	var (
		user domain.User
		ok   bool
	)
	r.s.view(func(d *dataset) {
		user, ok = d.users[id]
	})
	if !ok || !r.s.visible(user.Deleted) {
		return domain.User{}, domain.NotFound("user", id)
	}
	return user, nil
}

func (r userRepository) GetByUsername(_ context.Context, username string) (domain.User, error) {
	key := domain.NormalizeUsername(username)
	var (
		found domain.User
		ok    bool
	)
	r.s.view(func(d *dataset) {
		for _, u := range d.users {
			if r.s.visible(u.Deleted) && domain.NormalizeUsername(u.Username) == key {
				found, ok = u, true
				return
			}
		}
	})
	if !ok {
		return domain.User{}, domain.NotFound("user", username)
	}
	return found, nil
}

func (r userRepository) List(_ context.Context, page domain.Page) ([]domain.User, int, error) {
	var all []domain.User
	r.s.view(func(d *dataset) {
		for _, u := range d.users {
			if r.s.visible(u.Deleted) {
				all = append(all, u)
			}
		}
	})
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, page), len(all), nil
}

// Search ищет подстроку без учёта регистра в имени, логине, email и телефоне.
func (r userRepository) Search(_ context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	keyword := strings.ToLower(strings.TrimSpace(filter.Keyword))

	var matched []domain.User
	r.s.view(func(d *dataset) {
		for _, u := range d.users {
			if !r.s.visible(u.Deleted) || !userMatches(u, keyword) {
				continue
			}
			matched = append(matched, u)
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return paginate(matched, filter.Page), len(matched), nil
}

func userMatches(u domain.User, keyword string) bool {
	if keyword == "" {
		return true
	}
	for _, field := range []string{u.Name, u.Username, u.Email, u.Phone} {
		if strings.Contains(strings.ToLower(field), keyword) {
			return true
		}
	}
	return false
}

func (r userRepository) Create(_ context.Context, user domain.User) (domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	stampCreated(&user.CreatedAt, &user.UpdatedAt, r.s.now())

	err := r.s.mutate(func(d *dataset) error {
		if _, exists := d.users[user.ID]; exists {
			return domain.ErrAlreadyExists
		}
		if usernameTaken(d, user.Username, user.ID) {
			return domain.ErrUsernameTaken
		}
		d.users[user.ID] = user
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r userRepository) Update(_ context.Context, user domain.User) (domain.User, error) {
	err := r.s.mutate(func(d *dataset) error {
		current, ok := d.users[user.ID]
		if !ok || current.Deleted {
			return domain.NotFound("user", user.ID)
		}
		if usernameTaken(d, user.Username, user.ID) {
			return domain.ErrUsernameTaken
		}
		user.CreatedAt = current.CreatedAt
		user.Deleted = false
		d.users[user.ID] = user
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r userRepository) SoftDelete(_ context.Context, id string) error {
	now := r.s.now()
	return r.s.mutate(func(d *dataset) error {
		user, ok := d.users[id]
		if !ok || user.Deleted {
			return domain.NotFound("user", id)
		}
		user.Deleted = true
		user.UpdatedAt = now
		d.users[id] = user
		return nil
	})
}

// usernameTaken проверяет уникальность логина только среди неудалённых пользователей.
func usernameTaken(d *dataset, username, exceptID string) bool {
	key := domain.NormalizeUsername(username)
	for id, u := range d.users {
		if id != exceptID && !u.Deleted && domain.NormalizeUsername(u.Username) == key {
			return true
		}
	}
	return false
}

type categoryRepository struct{ s *Store }

func (r categoryRepository) Get(_ context.Context, id string) (domain.Category, error) {
	var (
		category domain.Category
		ok       bool
	)
	r.s.view(func(d *dataset) {
		category, ok = d.categories[id]
	})
	if !ok || !r.s.visible(category.Deleted) {
		return domain.Category{}, domain.NotFound("category", id)
	}
	return category, nil
}

func (r categoryRepository) List(_ context.Context) ([]domain.Category, error) {
	result := make([]domain.Category, 0)
	r.s.view(func(d *dataset) {
		for _, c := range d.categories {
			if r.s.visible(c.Deleted) {
				result = append(result, c)
			}
		}
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r categoryRepository) Create(_ context.Context, category domain.Category) (domain.Category, error) {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	stampCreated(&category.CreatedAt, &category.UpdatedAt, r.s.now())

	err := r.s.mutate(func(d *dataset) error {
		if _, exists := d.categories[category.ID]; exists {
			return domain.ErrAlreadyExists
		}
		d.categories[category.ID] = category
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

func (r categoryRepository) Update(_ context.Context, category domain.Category) (domain.Category, error) {
	err := r.s.mutate(func(d *dataset) error {
		current, ok := d.categories[category.ID]
		if !ok || current.Deleted {
			return domain.NotFound("category", category.ID)
		}
		category.CreatedAt = current.CreatedAt
		category.Deleted = false
		d.categories[category.ID] = category
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

func (r categoryRepository) SoftDelete(_ context.Context, id string) error {
	now := r.s.now()
	return r.s.mutate(func(d *dataset) error {
		category, ok := d.categories[id]
		if !ok || category.Deleted {
			return domain.NotFound("category", id)
		}
		category.Deleted = true
		category.UpdatedAt = now
		d.categories[id] = category
		return nil
	})
}

type productRepository struct{ s *Store }

func (r productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	var (
		product domain.Product
		ok      bool
	)
	r.s.view(func(d *dataset) {
		product, ok = d.products[id]
	})
	if !ok || !r.s.visible(product.Deleted) {
		return domain.Product{}, domain.NotFound("product", id)
	}
	return product, nil
}

func (r productRepository) List(_ context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	keyword := strings.ToLower(strings.TrimSpace(filter.Keyword))

	var matched []domain.Product
	r.s.view(func(d *dataset) {
		for _, p := range d.products {
			if !r.s.visible(p.Deleted) {
				continue
			}
			if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
				continue
			}
			if keyword != "" &&
				!strings.Contains(strings.ToLower(p.Name), keyword) &&
				!strings.Contains(strings.ToLower(p.Description), keyword) {
				continue
			}
			matched = append(matched, p)
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return paginate(matched, filter.Page), len(matched), nil
}

func (r productRepository) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	stampCreated(&product.CreatedAt, &product.UpdatedAt, r.s.now())

	err := r.s.mutate(func(d *dataset) error {
		if _, exists := d.products[product.ID]; exists {
			return domain.ErrAlreadyExists
		}
		d.products[product.ID] = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (r productRepository) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	err := r.s.mutate(func(d *dataset) error {
		current, ok := d.products[product.ID]
		if !ok || current.Deleted {
			return domain.NotFound("product", product.ID)
		}
		product.CreatedAt = current.CreatedAt
		product.Deleted = false
		d.products[product.ID] = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (r productRepository) SoftDelete(_ context.Context, id string) error {
	now := r.s.now()
	return r.s.mutate(func(d *dataset) error {
		product, ok := d.products[id]
		if !ok || product.Deleted {
			return domain.NotFound("product", id)
		}
		product.Deleted = true
		product.UpdatedAt = now
		d.products[id] = product
		return nil
	})
}

func paginate[T any](all []T, page domain.Page) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(all) {
		return []T{}
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	return append([]T(nil), all[start:end]...)
}

var (
	_ domain.UserRepository     = userRepository{}
	_ domain.CategoryRepository = categoryRepository{}
	_ domain.ProductRepository  = productRepository{}
)
