package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/auth"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFrom возвращает вызывающего, если запрос аутентифицирован.
func principalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// requestLogger пишет одну строку logrus на запрос.
func requestLogger(logger *log.Entry) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(log.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Info("http request")
		})
	}
}

// authenticate проверяет bearer-токен. Запрос без заголовка проходит анонимно,
// запрос с неверным токеном отклоняется. Субъект токена перечитывается среди
// неудалённых пользователей: удалённая учётная запись теряет доступ сразу,
// а роль берётся из хранилища, а не из токена.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			h.fail(w, http.StatusUnauthorized, "malformed authorization header", nil)
			return
		}
		p, err := h.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		user, err := h.catalog.GetUser(r.Context(), p.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				h.fail(w, http.StatusUnauthorized, "account is no longer active", nil)
				return
			}
			h.writeError(w, r, err)
			return
		}
		p.Role = user.Role
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := principalFrom(r.Context()); !ok {
			h.fail(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok {
			h.fail(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		if !p.IsAdmin() {
			h.writeError(w, r, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorizeOwner пропускает владельца ресурса и администратора.
func (h *Handler) authorizeOwner(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	p, _ := principalFrom(r.Context())
	if !p.CanAccess(ownerID) {
		h.writeError(w, r, domain.ErrForbidden)
		return false
	}
	return true
}
