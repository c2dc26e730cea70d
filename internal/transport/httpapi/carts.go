package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// getCart отдаёт корзину вызывающего. Чужие корзины недоступны и администратору.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	cart, err := h.carts.Get(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", toCartResponse(cart))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	h.putCartItem(w, r, h.carts.AddItem, "item added to cart")
}

func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	h.putCartItem(w, r, h.carts.SetItem, "cart item updated")
}

type cartWrite func(ctx context.Context, userID, productID string, quantity int32) (domain.Cart, error)

func (h *Handler) putCartItem(w http.ResponseWriter, r *http.Request, write cartWrite, message string) {
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := principalFrom(r.Context())
	cart, err := write(r.Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, message, toCartResponse(cart))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	cart, err := h.carts.RemoveItem(r.Context(), p.UserID, chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "item removed from cart", toCartResponse(cart))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := h.carts.Clear(r.Context(), p.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := principalFrom(r.Context())
	order, err := h.carts.Checkout(r.Context(), domain.CheckoutCommand{
		UserID:          p.UserID,
		FullName:        req.FullName,
		PhoneNumber:     req.PhoneNumber,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "order created", toOrderResponse(order))
}
