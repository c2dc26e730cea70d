package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := principalFrom(r.Context())

	userID := p.UserID
	if p.IsAdmin() && strings.TrimSpace(req.UserID) != "" {
		userID = strings.TrimSpace(req.UserID)
	}

	cmd := domain.CreateOrderCommand{
		UserID:          userID,
		FullName:        req.FullName,
		PhoneNumber:     req.PhoneNumber,
		ShippingAddress: req.ShippingAddress,
		Items:           make([]domain.OrderItemRequest, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, domain.OrderItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := h.orders.CreateOrder(r.Context(), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "order created", toOrderResponse(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	userID := p.UserID
	if requested := strings.TrimSpace(r.URL.Query().Get("userId")); requested != "" && requested != userID {
		if !p.IsAdmin() {
			h.writeError(w, r, domain.ErrForbidden)
			return
		}
		userID = requested
	}

	page := pageFrom(r)
	orders, total, err := h.orders.ListOrders(r.Context(), userID, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newPageEnvelope(mapSlice(orders, toOrderResponse), page, total))
}

// loadOwnedOrder читает заказ и проверяет право доступа к нему.
// Чужой заказ для покупателя неотличим от отсутствующего.
func (h *Handler) loadOwnedOrder(w http.ResponseWriter, r *http.Request) (domain.Order, bool) {
	id := chi.URLParam(r, "id")
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return domain.Order{}, false
	}
	p, _ := principalFrom(r.Context())
	if !p.CanAccess(order.UserID) {
		h.writeError(w, r, domain.NotFound("order", id))
		return domain.Order{}, false
	}
	return order, true
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	h.ok(w, http.StatusOK, "", toOrderResponse(order))
}

// updateOrder: покупатель может менять контактные данные и отменять заказ,
// остальные переходы статуса доступны только администратору.
func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	var upd domain.OrderUpdate
	if !h.decode(w, r, &upd) {
		return
	}
	p, _ := principalFrom(r.Context())
	if status, set := upd.Status.Get(); set && !p.IsAdmin() && (upd.Status.IsNull() || status != domain.OrderStatusCancelled) {
		h.writeError(w, r, domain.ErrForbidden)
		return
	}

	updated, err := h.orders.UpdateOrder(r.Context(), order.ID, upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "order updated", toOrderResponse(updated))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	if err := h.orders.DeleteOrder(r.Context(), order.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orderTimeline(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	events, err := h.orders.Timeline(r.Context(), order.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", mapSlice(events, func(e domain.TimelineEvent) timelineEventResponse {
		return timelineEventResponse{Type: e.Type, Reason: e.Reason, Occurred: e.Occurred}
	}))
}

// archivedOrder показывает заказ вместе с удалёнными позициями.
func (h *Handler) archivedOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrderIncludingDeleted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", toOrderResponse(order))
}
