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
	categoryColumns = `id, name, description, deleted, created_at, updated_at`
	productColumns  = `id, name, description, price, image_url, category_id, deleted, created_at, updated_at`
)

type categoryRepository struct {
	s *Store
}

func scanCategory(row rowScanner) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Deleted, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r categoryRepository) Get(ctx context.Context, id string) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCategory(r.s.q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND `+r.s.live("deleted"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.NotFound("category", id)
		}
		return domain.Category{}, persistence("select category", err)
	}
	return c, nil
}

func (r categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.q.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE `+r.s.live("deleted")+`
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, persistence("list categories", err)
	}
	defer rows.Close()

	result := make([]domain.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, persistence("scan category row", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate category rows", err)
	}
	return result, nil
}

func (r categoryRepository) Create(ctx context.Context, category domain.Category) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	stampCreated(&category.CreatedAt, &category.UpdatedAt, r.s.now())

	if _, err := r.s.q.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, deleted, created_at, updated_at)
		VALUES ($1,$2,$3,FALSE,$4,$5)
	`, category.ID, category.Name, category.Description, category.CreatedAt, category.UpdatedAt); err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return domain.Category{}, domain.ErrAlreadyExists
		}
		return domain.Category{}, persistence("insert category", err)
	}
	category.Deleted = false
	return category, nil
}

func (r categoryRepository) Update(ctx context.Context, category domain.Category) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.s.q.QueryRowContext(ctx, `
		UPDATE categories
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1 AND deleted = FALSE
		RETURNING created_at
	`, category.ID, category.Name, category.Description, category.UpdatedAt).Scan(&category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.NotFound("category", category.ID)
		}
		return domain.Category{}, persistence("update category", err)
	}
	category.Deleted = false
	return category, nil
}

func (r categoryRepository) SoftDelete(ctx context.Context, id string) error {
	return softDelete(ctx, r.s, "categories", "category", id)
}

type productRepository struct {
	s *Store
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p          domain.Product
		categoryID sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &categoryID,
		&p.Deleted, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	p.CategoryID = categoryID.String
	return p, nil
}

func (r productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(r.s.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND `+r.s.live("deleted"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.NotFound("product", id)
		}
		return domain.Product{}, persistence("select product", err)
	}
	return p, nil
}

// List собирает условие выборки из фильтра. Ключевое слово ищется через ILIKE.
func (r productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	page := filter.Page.Normalize()

	where := []string{r.s.live("deleted")}
	args := make([]any, 0, 4)
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		args = append(args, "%"+escapeLike(kw)+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, persistence("count products", err)
	}

	args = append(args, page.Size, page.Offset())
	rows, err := r.s.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM products
		WHERE %s
		ORDER BY created_at DESC, id ASC
		LIMIT $%d OFFSET $%d
	`, productColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, persistence("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, page.Size)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, persistence("scan product row", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, persistence("iterate product rows", err)
	}
	return products, total, nil
}

func (r productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	stampCreated(&product.CreatedAt, &product.UpdatedAt, r.s.now())

	if _, err := r.s.q.ExecContext(ctx, `
		INSERT INTO products (
			id, name, description, price, image_url, category_id, deleted, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7,$8)
	`,
		product.ID, product.Name, product.Description, product.Price, product.ImageURL,
		nullable(product.CategoryID), product.CreatedAt, product.UpdatedAt,
	); err != nil {
		return domain.Product{}, productWriteError("insert product", product, err)
	}
	product.Deleted = false
	return product, nil
}

func (r productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.s.q.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2,
		    description = $3,
		    price = $4,
		    image_url = $5,
		    category_id = $6,
		    updated_at = $7
		WHERE id = $1 AND deleted = FALSE
		RETURNING created_at
	`,
		product.ID, product.Name, product.Description, product.Price, product.ImageURL,
		nullable(product.CategoryID), product.UpdatedAt,
	).Scan(&product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.NotFound("product", product.ID)
		}
		return domain.Product{}, productWriteError("update product", product, err)
	}
	product.Deleted = false
	return product, nil
}

func (r productRepository) SoftDelete(ctx context.Context, id string) error {
	return softDelete(ctx, r.s, "products", "product", id)
}

func productWriteError(op string, product domain.Product, err error) error {
	if _, ok := isUniqueViolation(err); ok {
		return domain.ErrAlreadyExists
	}
	if isForeignKeyViolation(err) {
		return &domain.UnresolvedReferenceError{Entity: "category", ID: product.CategoryID}
	}
	return persistence(op, err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var (
	_ domain.CategoryRepository = categoryRepository{}
	_ domain.ProductRepository  = productRepository{}
)
