// Package httpapi публикует REST API магазина поверх chi.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/auth"
)

// OrderService — операции над агрегатом заказа.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd domain.CreateOrderCommand) (domain.Order, error)
	UpdateOrder(ctx context.Context, orderID string, upd domain.OrderUpdate) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderIncludingDeleted(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, userID string, page domain.Page) ([]domain.Order, int, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// CatalogService — операции над пользователями, категориями и товарами.
type CatalogService interface {
	RegisterUser(ctx context.Context, cmd domain.RegisterUserCommand) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	ListUsers(ctx context.Context, page domain.Page) ([]domain.User, int, error)
	UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	SearchUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error)
	ChangePassword(ctx context.Context, id, current, next string) error
	ResetPassword(ctx context.Context, id, next string) error
	ChangeRole(ctx context.Context, id string, role domain.Role) (domain.User, error)

	CreateCategory(ctx context.Context, name, description string) (domain.Category, error)
	GetCategory(ctx context.Context, id string) (domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, id string, upd domain.CategoryUpdate) (domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, cmd domain.CreateProductCommand) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	UpdateProduct(ctx context.Context, id string, upd domain.ProductUpdate) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// CartService — корзина вызывающего и оформление заказа из неё.
type CartService interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int32) (domain.Cart, error)
	SetItem(ctx context.Context, userID, productID string, quantity int32) (domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
	Checkout(ctx context.Context, cmd domain.CheckoutCommand) (domain.Order, error)
}

// Authenticator проверяет логин и пароль.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.Session, error)
}

// TokenParser проверяет bearer-токен.
type TokenParser interface {
	Parse(token string) (auth.Principal, error)
}

// Handler обслуживает HTTP-запросы.
type Handler struct {
	orders   OrderService
	catalog  CatalogService
	carts    CartService
	auth     Authenticator
	tokens   TokenParser
	logger   *log.Entry
	validate *validator.Validate
}

// NewHandler собирает Handler.
func NewHandler(orders OrderService, catalog CatalogService, carts CartService, authn Authenticator, tokens TokenParser, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	return &Handler{
		orders:   orders,
		catalog:  catalog,
		carts:    carts,
		auth:     authn,
		tokens:   tokens,
		logger:   logger,
		validate: newValidator(),
	}
}

// Router возвращает маршруты API под префиксом /api/v1.
func (h *Handler) Router(requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		h.fail(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		h.fail(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/auth/login", h.login)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.registerUser)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Get("/me", h.currentUser)
				r.Put("/me/password", h.changePassword)
				r.Get("/{id}", h.getUser)
				r.Patch("/{id}", h.updateUser)
				r.Delete("/{id}", h.deleteUser)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Get("/", h.listUsers)
				r.Get("/search", h.searchUsers)
				r.Put("/{id}/role", h.changeRole)
				r.Put("/{id}/password", h.resetPassword)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.listCategories)
			r.Get("/{id}", h.getCategory)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Post("/", h.createCategory)
				r.Patch("/{id}", h.updateCategory)
				r.Delete("/{id}", h.deleteCategory)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/search", h.listProducts)
			r.Get("/{id}", h.getProduct)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Post("/", h.createProduct)
				r.Patch("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deleteProduct)
			})
		})

		r.Route("/carts", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Put("/items", h.setCartItem)
			r.Delete("/items/{productId}", h.removeCartItem)
			r.Post("/checkout", h.checkout)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/", h.createOrder)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Patch("/{id}", h.updateOrder)
			r.Delete("/{id}", h.deleteOrder)
			r.Get("/{id}/timeline", h.orderTimeline)
		})

		r.With(h.requireAdmin).Get("/admin/orders/{id}/archive", h.archivedOrder)
	})

	return r
}

// pageFrom читает page (с нуля) и size из query-строки.
func pageFrom(r *http.Request) domain.Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	return domain.Page{Number: number, Size: size}.Normalize()
}
