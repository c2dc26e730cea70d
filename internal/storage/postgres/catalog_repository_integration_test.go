package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

func TestUserRepository_PostgresUsernameUniqueAmongLiveUsers(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := store.Users()

	first, err := repo.Create(ctx, domain.User{Name: "Ivan", Username: "ivan", PasswordHash: "h", Role: domain.RoleCustomer})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := repo.Create(ctx, domain.User{Name: "Ivan", Username: "IVAN", PasswordHash: "h", Role: domain.RoleCustomer}); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	found, err := repo.GetByUsername(ctx, " Ivan ")
	if err != nil || found.ID != first.ID {
		t.Fatalf("lookup by username: %v %+v", err, found)
	}

	if err := repo.SoftDelete(ctx, first.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := repo.SoftDelete(ctx, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete must be NotFound, got %v", err)
	}
	if _, err := repo.Create(ctx, domain.User{Name: "Ivan 2", Username: "ivan", PasswordHash: "h", Role: domain.RoleCustomer}); err != nil {
		t.Fatalf("username of deleted user must be reusable: %v", err)
	}

	users, total, err := repo.List(ctx, domain.Page{})
	if err != nil || total != 1 || len(users) != 1 {
		t.Fatalf("list users: %v total=%d", err, total)
	}
}

func TestProductRepository_PostgresFilterAndCategoryReference(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	beds, err := store.Categories().Create(ctx, domain.Category{Name: "Beds"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	for _, name := range []string{"Double bed", "Bunk bed"} {
		if _, err := store.Products().Create(ctx, domain.Product{Name: name, Price: decimal.NewFromInt(300), CategoryID: beds.ID}); err != nil {
			t.Fatalf("create product: %v", err)
		}
	}
	mirror, err := store.Products().Create(ctx, domain.Product{Name: "Mirror", Description: "100% glass", Price: decimal.NewFromInt(40)})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	list, total, err := store.Products().List(ctx, domain.ProductFilter{CategoryID: beds.ID})
	if err != nil || total != 2 || len(list) != 2 {
		t.Fatalf("filter by category: %v total=%d", err, total)
	}

	list, total, err = store.Products().List(ctx, domain.ProductFilter{Keyword: "100%"})
	if err != nil || total != 1 || list[0].ID != mirror.ID {
		t.Fatalf("keyword search: %v total=%d", err, total)
	}
	if !list[0].Price.Equal(decimal.NewFromInt(40)) || list[0].CategoryID != "" {
		t.Fatalf("unexpected product payload: %+v", list[0])
	}

	if _, err := store.Products().Create(ctx, domain.Product{Name: "Ghost", Price: decimal.NewFromInt(1), CategoryID: "missing"}); !errors.Is(err, domain.ErrUnresolvedReference) {
		t.Fatalf("expected ErrUnresolvedReference for unknown category, got %v", err)
	}

	if err := store.Categories().SoftDelete(ctx, beds.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	if _, err := store.Categories().Get(ctx, beds.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted category must be hidden, got %v", err)
	}
	if _, err := store.Unscoped().Categories().Get(ctx, beds.ID); err != nil {
		t.Fatalf("unscoped read must see deleted category: %v", err)
	}
}
