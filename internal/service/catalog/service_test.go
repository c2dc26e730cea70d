package catalog

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/auth"
	"github.com/vladislavdragonenkov/furniture-store/internal/storage/memory"
)

func newServiceForTests() (*Service, *memory.Store) {
	logger := log.New()
	logger.SetOutput(io.Discard)
	store := memory.NewStore()
	return NewService(store, auth.NewBcryptHasher(bcrypt.MinCost), log.NewEntry(logger)), store
}

func TestRegisterUser(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, domain.RegisterUserCommand{Name: "Ivan", Username: "ivan", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, user.Role)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))

	_, err = svc.RegisterUser(ctx, domain.RegisterUserCommand{Name: "Ivan 2", Username: "IVAN", Password: "secret2"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	_, err = svc.RegisterUser(ctx, domain.RegisterUserCommand{Username: "x", Password: "123"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Details, "name")
	assert.Contains(t, verr.Details, "password")
}

func TestRegisterUser_DeletedUsernameIsReusable(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	first, err := svc.RegisterUser(ctx, domain.RegisterUserCommand{Name: "Olga", Username: "olga", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(ctx, first.ID))

	second, err := svc.RegisterUser(ctx, domain.RegisterUserCommand{Name: "Olga", Username: "olga", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = svc.GetUser(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteUser(ctx, first.ID), domain.ErrNotFound)
}

func TestUpdateUser(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, domain.RegisterUserCommand{
		Name: "Petr", Username: "petr", Password: "secret1", Email: "petr@example.com",
	})
	require.NoError(t, err)

	same, err := svc.UpdateUser(ctx, user.ID, domain.UserUpdate{})
	require.NoError(t, err)
	assert.Equal(t, user, same)

	updated, err := svc.UpdateUser(ctx, user.ID, domain.UserUpdate{
		Phone: domain.Some("+70000000000"),
		Email: domain.Null[string](),
	})
	require.NoError(t, err)
	assert.Equal(t, "+70000000000", updated.Phone)
	assert.Empty(t, updated.Email)
	assert.Equal(t, "Petr", updated.Name)
	assert.Equal(t, user.PasswordHash, updated.PasswordHash)

	_, err = svc.UpdateUser(ctx, user.ID, domain.UserUpdate{Name: domain.Null[string]()})
	assert.ErrorIs(t, err, domain.ErrMergeRejected)

	_, err = svc.UpdateUser(ctx, "missing", domain.UserUpdate{Name: domain.Some("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, "admin", "admin-pass")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	again, err := svc.EnsureAdmin(ctx, "admin", "other-pass")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
}

func TestCategories(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, "  ", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	sofas, err := svc.CreateCategory(ctx, "Sofas", "Soft furniture")
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, "Chairs", "")
	require.NoError(t, err)

	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Chairs", list[0].Name)

	renamed, err := svc.UpdateCategory(ctx, sofas.ID, domain.CategoryUpdate{Name: domain.Some("Couches")})
	require.NoError(t, err)
	assert.Equal(t, "Couches", renamed.Name)
	assert.Equal(t, "Soft furniture", renamed.Description)

	require.NoError(t, svc.DeleteCategory(ctx, sofas.ID))
	_, err = svc.GetCategory(ctx, sofas.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteCategory(ctx, sofas.ID), domain.ErrNotFound)
}

func TestCreateProduct_ResolvesCategory(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	tables, err := svc.CreateCategory(ctx, "Tables", "")
	require.NoError(t, err)

	product, err := svc.CreateProduct(ctx, domain.CreateProductCommand{
		Name: "Oak table", Price: decimal.RequireFromString("320.00"), CategoryID: tables.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, tables.ID, product.CategoryID)

	_, err = svc.CreateProduct(ctx, domain.CreateProductCommand{Name: "Ghost", Price: decimal.NewFromInt(1), CategoryID: "nope"})
	assert.ErrorIs(t, err, domain.ErrUnresolvedReference)

	require.NoError(t, svc.DeleteCategory(ctx, tables.ID))
	_, err = svc.CreateProduct(ctx, domain.CreateProductCommand{Name: "Pine table", Price: decimal.NewFromInt(1), CategoryID: tables.ID})
	assert.ErrorIs(t, err, domain.ErrUnresolvedReference)

	_, err = svc.CreateProduct(ctx, domain.CreateProductCommand{Name: "Cheap", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, domain.CreateProductCommand{Name: "Lamp", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdate{Price: domain.Some(decimal.NewFromInt(12))})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(12).Equal(updated.Price))
	assert.Equal(t, "Lamp", updated.Name)

	_, err = svc.UpdateProduct(ctx, product.ID, domain.ProductUpdate{CategoryID: domain.Some("missing")})
	assert.ErrorIs(t, err, domain.ErrUnresolvedReference)

	_, err = svc.UpdateProduct(ctx, product.ID, domain.ProductUpdate{Price: domain.Some(decimal.NewFromInt(-5))})
	assert.ErrorIs(t, err, domain.ErrMergeRejected)

	require.NoError(t, svc.DeleteProduct(ctx, product.ID))
	_, err = svc.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.UpdateProduct(ctx, product.ID, domain.ProductUpdate{Name: domain.Some("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListProducts_FiltersAndPaginates(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	beds, err := svc.CreateCategory(ctx, "Beds", "")
	require.NoError(t, err)
	for _, name := range []string{"Double bed", "Single bed", "Bunk bed"} {
		_, err := svc.CreateProduct(ctx, domain.CreateProductCommand{Name: name, Price: decimal.NewFromInt(100), CategoryID: beds.ID})
		require.NoError(t, err)
	}
	_, err = svc.CreateProduct(ctx, domain.CreateProductCommand{Name: "Mirror", Price: decimal.NewFromInt(30)})
	require.NoError(t, err)

	items, total, err := svc.ListProducts(ctx, domain.ProductFilter{CategoryID: beds.ID, Page: domain.Page{Number: 0, Size: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)

	items, total, err = svc.ListProducts(ctx, domain.ProductFilter{Keyword: "MIRROR"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Mirror", items[0].Name)
}

func TestChangeAndResetPassword(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, domain.RegisterUserCommand{Name: "Pavel", Username: "pavel", Password: "secret1"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong-one", "secret2")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Details, "currentPassword")

	err = svc.ChangePassword(ctx, user.ID, "secret1", "123")
	assert.ErrorIs(t, err, domain.ErrMergeRejected, "new password must pass the length rule")

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "secret1", "secret2"))
	stored, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret2")))

	require.NoError(t, svc.ResetPassword(ctx, user.ID, "by-admin"))
	stored, err = svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("by-admin")))

	require.NoError(t, svc.DeleteUser(ctx, user.ID))
	assert.ErrorIs(t, svc.ResetPassword(ctx, user.ID, "again-1"), domain.ErrNotFound)
}

func TestChangeRole(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, domain.RegisterUserCommand{Name: "Vera", Username: "vera", Password: "secret1"})
	require.NoError(t, err)

	promoted, err := svc.ChangeRole(ctx, user.ID, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, promoted.Role)
	assert.Equal(t, user.PasswordHash, promoted.PasswordHash, "other fields are kept")

	_, err = svc.ChangeRole(ctx, user.ID, domain.Role("root"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.ChangeRole(ctx, "missing", domain.RoleCustomer)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchUsers(t *testing.T) {
	svc, _ := newServiceForTests()
	ctx := context.Background()

	for _, cmd := range []domain.RegisterUserCommand{
		{Name: "Maria Ivanova", Username: "maria", Password: "secret1", Email: "maria@example.com"},
		{Name: "Ivan Orlov", Username: "orlov", Password: "secret1"},
		{Name: "Oleg", Username: "oleg", Password: "secret1", Phone: "+79161234567"},
	} {
		_, err := svc.RegisterUser(ctx, cmd)
		require.NoError(t, err)
	}

	found, total, err := svc.SearchUsers(ctx, domain.UserFilter{Keyword: "IVAN"})
	require.NoError(t, err)
	assert.Equal(t, 2, total, "name match is case-insensitive")
	assert.Len(t, found, 2)

	found, _, err = svc.SearchUsers(ctx, domain.UserFilter{Keyword: "9161234"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "oleg", found[0].Username)

	require.NoError(t, svc.DeleteUser(ctx, found[0].ID))
	_, total, err = svc.SearchUsers(ctx, domain.UserFilter{Keyword: "oleg"})
	require.NoError(t, err)
	assert.Zero(t, total, "deleted users are not found")
}
