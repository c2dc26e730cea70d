package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "logged in", loginResponse{
		AccessToken: session.AccessToken,
		ExpiresAt:   session.ExpiresAt,
		User:        toUserResponse(session.User),
	})
}

// registerUser создаёт покупателя. Роль из запроса учитывается, только если
// вызывающий администратор.
func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	role := domain.RoleCustomer
	if req.Role != "" {
		if p, _ := principalFrom(r.Context()); !p.IsAdmin() && domain.Role(req.Role) != domain.RoleCustomer {
			h.writeError(w, r, domain.ErrForbidden)
			return
		}
		role = domain.Role(req.Role)
	}

	user, err := h.catalog.RegisterUser(r.Context(), domain.RegisterUserCommand{
		Name:     req.Name,
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Address:  req.Address,
		Phone:    req.Phone,
		Role:     role,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "user registered", toUserResponse(user))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	users, total, err := h.catalog.ListUsers(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newPageEnvelope(mapSlice(users, toUserResponse), page, total))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorizeOwner(w, r, id) {
		return
	}
	user, err := h.catalog.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", toUserResponse(user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorizeOwner(w, r, id) {
		return
	}
	var upd domain.UserUpdate
	if !h.decode(w, r, &upd) {
		return
	}
	user, err := h.catalog.UpdateUser(r.Context(), id, upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "user updated", toUserResponse(user))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.authorizeOwner(w, r, id) {
		return
	}
	if err := h.catalog.DeleteUser(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	user, err := h.catalog.GetUser(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", toUserResponse(user))
}

func (h *Handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	users, total, err := h.catalog.SearchUsers(r.Context(), domain.UserFilter{
		Keyword: r.URL.Query().Get("keyword"),
		Page:    page,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newPageEnvelope(mapSlice(users, toUserResponse), page, total))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, _ := principalFrom(r.Context())
	if err := h.catalog.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "password changed", nil)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.catalog.ResetPassword(r.Context(), chi.URLParam(r, "id"), req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "password reset", nil)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.catalog.ChangeRole(r.Context(), chi.URLParam(r, "id"), domain.Role(req.Role))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "role changed", toUserResponse(user))
}
